package extract

import (
	"strings"
)

// LegacyReportMarker starts the human-readable report the Office text
// extraction script prints when it cannot emit JSON.
const LegacyReportMarker = "Номер счета:"

// IsLegacyReport reports whether s looks like that report.
func IsLegacyReport(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), LegacyReportMarker)
}

// ParseLegacyReport reads "Ключ: значение" lines of the fallback report:
//
//	Номер счета: 128
//	Дата счета: 05.03.2024
//	Поставщик: ООО Ромашка
//	ИНН поставщика: 7701234567
//	Сумма: 15 000,50
//	НДС: 2 500,00
//
// Unknown keys are ignored; values that do not parse are dropped.
func ParseLegacyReport(report string) Fields {
	f := Fields{Items: []LineItem{}}
	var customer Party

	for _, line := range strings.Split(normalizeText(report), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" || value == "-" || strings.EqualFold(value, "не найдено") {
			continue
		}

		switch {
		case key == "номер счета" || key == "номер":
			f.InvoiceNumber = ptr(value)
		case strings.HasPrefix(key, "дата счета") || key == "дата":
			if d, ok := ParseDate(value); ok {
				f.IssueDate = ptr(d)
			}
		case strings.HasPrefix(key, "срок оплаты") || strings.HasPrefix(key, "оплатить до"):
			if d, ok := ParseDate(value); ok {
				f.DueDate = ptr(d)
			}
		case strings.HasPrefix(key, "инн покупател"):
			customer.INN = ptr(stripSpaces(value))
		case strings.HasPrefix(key, "инн"):
			f.Supplier.INN = ptr(stripSpaces(value))
		case strings.HasPrefix(key, "кпп"):
			f.Supplier.KPP = ptr(stripSpaces(value))
		case key == "поставщик" || key == "продавец":
			f.Supplier.Name = ptr(value)
		case key == "покупатель" || key == "заказчик":
			customer.Name = ptr(value)
		case key == "ставка ндс":
			f.VATRate = ptr(strings.TrimSuffix(strings.ReplaceAll(value, " ", ""), "%"))
		case key == "ндс" || key == "сумма ндс":
			raw := amountFrom(value)
			if raw != "" {
				f.VATAmount = ptr(raw)
				if v, ok := NormalizeAmount(raw); ok {
					f.VATAmountValue = ptr(v)
				}
			}
		case key == "сумма" || key == "итого" || key == "всего" || key == "сумма к оплате":
			raw := amountFrom(value)
			if raw != "" {
				f.TotalAmount = ptr(raw)
				if v, ok := NormalizeAmount(raw); ok {
					f.TotalAmountValue = ptr(v)
				}
			}
		}
	}

	if !customer.empty() {
		f.Customer = &customer
	}
	return f
}

// amountFrom pulls the first money token out of a report value such as
// "15 000,50 руб.".
func amountFrom(value string) string {
	m := amountOnlyRe.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return stripSpaces(m[1])
}
