package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// monthNumbers maps Russian month names in the nominative and genitive
// forms to their two-digit numbers.
var monthNumbers = map[string]string{
	"январь": "01", "января": "01",
	"февраль": "02", "февраля": "02",
	"март": "03", "марта": "03",
	"апрель": "04", "апреля": "04",
	"май": "05", "мая": "05",
	"июнь": "06", "июня": "06",
	"июль": "07", "июля": "07",
	"август": "08", "августа": "08",
	"сентябрь": "09", "сентября": "09",
	"октябрь": "10", "октября": "10",
	"ноябрь": "11", "ноября": "11",
	"декабрь": "12", "декабря": "12",
}

// MonthNumber returns the two-digit number for a Russian month name.
// Unknown or misspelled names map to "01".
func MonthNumber(name string) string {
	if n, ok := monthNumbers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return n
	}
	return "01"
}

// dateBody matches either dd.mm.yyyy (separators . / -, 2 or 4 digit
// year) or "5 марта 2024". Groups: 1-3 numeric, 4-6 spelled out.
const dateBody = `(?:(\d{1,2})[./-](\d{1,2})[./-](\d{4}|\d{2})|(\d{1,2})\s+([а-яА-ЯёЁ]+)\s+(\d{4}))`

var (
	issueDateRe = regexp.MustCompile(`(?i)(?:^|[^а-яёa-z])(?:от|дата(?:\s+сч[её]та|\s+документа)?|date)[\s:]*` + dateBody)
	dueDateRe   = regexp.MustCompile(`(?i)(?:оплатить\s+до|оплата\s+до|срок\s+оплаты(?:\s+до)?|действителен\s+до|due\s+date)[\s:]*` + dateBody)
	anyDateRe   = regexp.MustCompile(`(?i)^\s*` + dateBody)
)

func findIssueDate(text string) *string {
	return dateFromMatch(issueDateRe.FindStringSubmatch(text))
}

func findDueDate(text string) *string {
	return dateFromMatch(dueDateRe.FindStringSubmatch(text))
}

// ParseDate converts a standalone date token ("05.03.2024", "5 марта
// 2024") to YYYY-MM-DD.
func ParseDate(s string) (string, bool) {
	d := dateFromMatch(anyDateRe.FindStringSubmatch(s))
	if d == nil {
		return "", false
	}
	return *d, true
}

// dateFromMatch builds an ISO date from the last six groups of a match
// against dateBody.
func dateFromMatch(m []string) *string {
	if len(m) < 7 {
		return nil
	}
	g := m[len(m)-6:]
	switch {
	case g[0] != "":
		year := g[2]
		if len(year) == 2 {
			year = "20" + year
		}
		return ptr(isoDate(year, pad2(g[1]), g[0]))
	case g[3] != "":
		return ptr(isoDate(g[5], MonthNumber(g[4]), g[3]))
	}
	return nil
}

func isoDate(year, month, day string) string {
	return fmt.Sprintf("%s-%s-%s", year, month, pad2(day))
}

func pad2(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d", n)
}
