package extract

import (
	"regexp"
	"strings"
)

// amountToken is a money token: space-grouped thousands or plain digits,
// optionally followed by a comma or dot and up to two decimals.
const amountToken = `(\d{1,3}(?: \d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

var (
	totalRe = regexp.MustCompile(`(?i)(итого(?:\s+к\s+оплате)?|всего\s+к\s+оплате|к\s+оплате|на\s+сумму|сумма|всего|total)([^\d\n]*?)` + amountToken)

	// vatRe skips an optional rate such as "(20%)" between the label and the amount.
	vatRe = regexp.MustCompile(`(?i)(?:ндс|vat)(?:[^\d\n]*?\(?\d{1,2}(?:[.,]\d+)?\s*%\)?)?[^\d\n]*?` + amountToken)

	amountOnlyRe = regexp.MustCompile(amountToken)
	vatRateRe    = regexp.MustCompile(`(?i)(?:ндс|vat)[^\d\n%]{0,20}?(\d{1,2}(?:[.,]\d+)?)\s*%`)
	noVATRe      = regexp.MustCompile(`(?i)без\s+(?:налога\s*\()?ндс`)
	wsRe         = regexp.MustCompile(`\s+`)
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
)

// totalGapStop lists words that, between a total label and its number,
// mean the number is not the document total ("Всего наименований 3").
var totalGapStop = []string{"наименован", "позиц", "ндс", "vat", "%"}

func findTotal(text string) string {
	for _, m := range totalRe.FindAllStringSubmatch(text, -1) {
		gap := strings.ToLower(m[2])
		if containsAny(gap, totalGapStop) {
			continue
		}
		return stripSpaces(m[3])
	}
	return ""
}

func findVATAmount(text string) string {
	m := vatRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return stripSpaces(m[1])
}

func findVATRate(text string) *string {
	if m := vatRateRe.FindStringSubmatch(text); m != nil {
		return ptr(strings.Replace(m[1], ",", ".", 1))
	}
	if noVATRe.MatchString(text) {
		return ptr("0")
	}
	return nil
}

// NormalizeAmount converts a raw money token to a canonical decimal
// string with a dot separator and at least two fraction digits.
//
// Russian convention is assumed: spaces group thousands and a comma is
// the decimal separator. When both comma and dot appear, the rightmost
// one is the decimal separator. A lone dot followed by exactly three
// digits is read as a thousands separator ("1.500" is 1500), any other
// lone dot as a decimal point. Fractions are never rounded.
func NormalizeAmount(raw string) (string, bool) {
	s := stripSpaces(normalizeText(raw))
	if s == "" {
		return "", false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	var intPart, frac string
	switch {
	case lastComma >= 0 && lastDot >= 0:
		sep := lastComma
		if lastDot > lastComma {
			sep = lastDot
		}
		intPart = strings.NewReplacer(",", "", ".", "").Replace(s[:sep])
		frac = s[sep+1:]
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			intPart = strings.ReplaceAll(s, ",", "")
		} else {
			intPart, frac = s[:lastComma], s[lastComma+1:]
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			intPart = strings.ReplaceAll(s, ".", "")
		} else {
			intPart, frac = s[:lastDot], s[lastDot+1:]
		}
	default:
		intPart = s
	}

	if intPart == "" {
		intPart = "0"
	}
	if !digitsOnlyRe.MatchString(intPart) || (frac != "" && !digitsOnlyRe.MatchString(frac)) {
		return "", false
	}
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	return intPart + "." + frac, true
}

func stripSpaces(s string) string {
	return wsRe.ReplaceAllString(s, "")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
