package extract

import (
	"regexp"
	"strings"
)

// itemRunRe finds an integer followed by three integer-or-decimal tokens
// on one line. The leading group keeps the run from starting inside a
// longer number.
var itemRunRe = regexp.MustCompile(`(?:^|[^\d.,])(\d+)[ \t]+(\d+(?:[.,]\d+)?)[ \t]+(\d+(?:[.,]\d+)?)[ \t]+(\d+(?:[.,]\d+)?)`)

var (
	rowIndexRe = regexp.MustCompile(`^\d+[.)]?\s+`)
	unitTailRe = regexp.MustCompile(`(?i)\s(шт\.?|штук|м|м2|м²|м3|м³|п\.?м\.?|пог\.?\s?м\.?|кг|т|тн|л|уп\.?|упак\.?|компл\.?|к-т|меш\.?|рул\.?|лист|час|ч|усл\.?\s?ед\.?|ед\.?)$`)
)

// findLineItems returns one item per numeric run. It has no notion of
// table structure: dates, phone numbers and requisites that happen to
// form such a run produce false items.
func findLineItems(text string) []LineItem {
	items := []LineItem{}
	for _, loc := range itemRunRe.FindAllStringSubmatchIndex(text, -1) {
		item := LineItem{
			Quantity:  ptr(text[loc[2]:loc[3]]),
			UnitPrice: ptr(text[loc[4]:loc[5]]),
			Tax:       ptr(text[loc[6]:loc[7]]),
			Amount:    ptr(text[loc[8]:loc[9]]),
		}

		desc := strings.TrimSpace(text[lineStart(text, loc[2]):loc[2]])
		desc = rowIndexRe.ReplaceAllString(desc, "")
		if m := unitTailRe.FindStringSubmatchIndex(desc); m != nil {
			item.Unit = ptr(strings.TrimSpace(desc[m[2]:m[3]]))
			desc = desc[:m[0]]
		}
		item.Name = optional(cleanName(desc))

		items = append(items, item)
	}
	return items
}
