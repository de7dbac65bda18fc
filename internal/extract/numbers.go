package extract

import (
	"regexp"
	"strings"
)

// invoiceNumberRe: a label (счет, счет-фактура, УПД, invoice, номер, №)
// then, past any non-digit text on the same line, a token of digits,
// slashes and hyphens with an optional short letter series ("АБ-123").
var invoiceNumberRe = regexp.MustCompile(`(?i)(?:сч[её]т[а-яё]*(?:[\s-]*фактур[аы])?|упд|invoice|номер|№|n[o°]\.?)[^\d\n]*?([a-zа-яё]{1,6}[-/]?\d[\d/-]*|\d[\d/-]*)`)

// maxInvoiceNumberDigits keeps bank account numbers (20 digits, printed
// next to "Сч. №") out of the invoice number.
const maxInvoiceNumberDigits = 14

func findInvoiceNumber(text string) *string {
	for _, m := range invoiceNumberRe.FindAllStringSubmatch(text, -1) {
		token := strings.Trim(strings.TrimSpace(m[1]), "-/")
		if token == "" || countDigits(token) > maxInvoiceNumberDigits {
			continue
		}
		return ptr(token)
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
