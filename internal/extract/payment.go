package extract

import (
	"regexp"
	"strings"
)

var (
	accountRe     = regexp.MustCompile(`(?i)(?:р/с|р/сч|расч[её]тный\s+сч[её]т)[\s:№.]*(\d{20})`)
	corrAccountRe = regexp.MustCompile(`(?i)(?:к/с|к/сч|корр?\.?\s*сч[её]т|кор\.\s*сч\.?)[\s:№.]*(\d{20})`)
	genericAccRe  = regexp.MustCompile(`(?i)сч(?:[её]т)?\.?\s*№?\s*(\d{20})`)
	bikRe         = regexp.MustCompile(`(?i)бик[\s:№]*(\d{9})(?:\D|$)`)
	bankLabelRe   = regexp.MustCompile(`(?i)банк\s+получателя`)
	bankInlineRe  = regexp.MustCompile(`(?i)(?:^|[\s,])в\s+((?:ПАО|АО|ООО)?\s*[^,\n]*банк[^,\n]*)`)
)

// corrAccountPrefix starts every Russian correspondent account.
const corrAccountPrefix = "30101"

func findPayment(text string) PaymentDetails {
	var p PaymentDetails
	if m := accountRe.FindStringSubmatch(text); m != nil {
		p.Account = ptr(m[1])
	}
	if m := corrAccountRe.FindStringSubmatch(text); m != nil {
		p.CorrAccount = ptr(m[1])
	}
	// Standard invoice forms print both accounts after a bare "Сч. №";
	// the correspondent one is recognizable by its prefix.
	if p.Account == nil || p.CorrAccount == nil {
		for _, m := range genericAccRe.FindAllStringSubmatch(text, -1) {
			acc := m[1]
			if strings.HasPrefix(acc, corrAccountPrefix) {
				if p.CorrAccount == nil {
					p.CorrAccount = ptr(acc)
				}
			} else if p.Account == nil {
				p.Account = ptr(acc)
			}
		}
	}
	if m := bikRe.FindStringSubmatch(text); m != nil {
		p.BIK = ptr(m[1])
	}
	p.BankName = findBankName(text, p.BIK != nil || p.Account != nil)
	return p
}

// findBankName looks for "Банк получателя: <name>", then for the line
// just above a standalone "Банк получателя" label (the standard form),
// then, when the document carries bank requisites at all, for
// "в <...банк...>" inside a requisites line.
func findBankName(text string, hasRequisites bool) *string {
	if loc := bankLabelRe.FindStringIndex(text); loc != nil {
		rest := text[loc[1]:]
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if after, ok := strings.CutPrefix(strings.TrimLeft(rest, " "), ":"); ok {
			if name := bankNameFrom(after); name != "" {
				return ptr(name)
			}
		}
		start := lineStart(text, loc[0])
		if start > 0 {
			prev := text[lineStart(text, start-1) : start-1]
			if strings.Contains(strings.ToLower(prev), "банк") {
				if name := bankNameFrom(prev); name != "" {
					return ptr(name)
				}
			}
		}
	}
	if !hasRequisites {
		return nil
	}
	if m := bankInlineRe.FindStringSubmatch(text); m != nil {
		if name := bankNameFrom(m[1]); name != "" {
			return ptr(name)
		}
	}
	return nil
}

func bankNameFrom(s string) string {
	if loc := bikRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	if i := strings.Index(strings.ToLower(s), "бик"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexAny(s, "\t"); i >= 0 {
		s = s[:i]
	}
	return cleanName(s)
}
