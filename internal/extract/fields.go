// Package extract pulls structured invoice fields out of recognized text
// with a cascade of regular-expression heuristics tuned for Russian
// invoices (счет на оплату, счет-фактура, УПД).
//
// Every exported function is a pure function of its input: no I/O, no
// clocks, no randomness. Fields that no rule matched are left nil; an
// incomplete record is the normal result, never an error.
package extract

// Fields is the best-effort record extracted from one document.
type Fields struct {
	InvoiceNumber *string `json:"invoiceNumber,omitempty"`
	IssueDate     *string `json:"issueDate,omitempty"` // YYYY-MM-DD
	DueDate       *string `json:"dueDate,omitempty"`   // YYYY-MM-DD

	// TotalAmount and VATAmount hold the matched token with whitespace
	// removed ("15000,50"). The *Value fields hold the same amount as a
	// canonical decimal string ("15000.50"), see NormalizeAmount.
	TotalAmount      *string `json:"totalAmount,omitempty"`
	TotalAmountValue *string `json:"totalAmountValue,omitempty"`
	VATAmount        *string `json:"vatAmount,omitempty"`
	VATAmountValue   *string `json:"vatAmountValue,omitempty"`
	VATRate          *string `json:"vatRate,omitempty"` // percent, "0" for "без НДС"

	Supplier Party           `json:"supplier"`
	Customer *Party          `json:"customer,omitempty"`
	Payment  *PaymentDetails `json:"payment,omitempty"`
	Items    []LineItem      `json:"items"`
}

// Party is a counterparty: supplier or customer.
type Party struct {
	Name    *string `json:"name,omitempty"`
	INN     *string `json:"inn,omitempty"`
	KPP     *string `json:"kpp,omitempty"`
	Address *string `json:"address,omitempty"`
}

func (p Party) empty() bool {
	return p.Name == nil && p.INN == nil && p.KPP == nil && p.Address == nil
}

// PaymentDetails are the supplier's bank requisites.
type PaymentDetails struct {
	BankName    *string `json:"bankName,omitempty"`
	Account     *string `json:"account,omitempty"`     // р/с, 20 digits
	CorrAccount *string `json:"corrAccount,omitempty"` // к/с, 20 digits
	BIK         *string `json:"bik,omitempty"`
}

func (p PaymentDetails) empty() bool {
	return p.BankName == nil && p.Account == nil && p.CorrAccount == nil && p.BIK == nil
}

// LineItem is one guessed table row. Quantity is the leading integer of
// the numeric run, UnitPrice and Amount the second and fourth tokens; Tax
// keeps the third token, which on most layouts is the VAT or discount column.
type LineItem struct {
	Name      *string `json:"name,omitempty"`
	Quantity  *string `json:"quantity,omitempty"`
	Unit      *string `json:"unit,omitempty"`
	UnitPrice *string `json:"unitPrice,omitempty"`
	Tax       *string `json:"tax,omitempty"`
	Amount    *string `json:"amount,omitempty"`
}

// Missing lists the JSON names of the top-level fields left unset.
func (f *Fields) Missing() []string {
	var out []string
	add := func(name string, v *string) {
		if v == nil {
			out = append(out, name)
		}
	}
	add("invoiceNumber", f.InvoiceNumber)
	add("issueDate", f.IssueDate)
	add("dueDate", f.DueDate)
	add("totalAmount", f.TotalAmount)
	add("vatAmount", f.VATAmount)
	add("vatRate", f.VATRate)
	add("supplier.name", f.Supplier.Name)
	add("supplier.inn", f.Supplier.INN)
	add("supplier.kpp", f.Supplier.KPP)
	return out
}

func ptr(s string) *string {
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
