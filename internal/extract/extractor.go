package extract

import (
	"strings"
)

// Fragment is the subset of an OCR word/line the extractor accepts.
type Fragment struct {
	Text string
}

// Extractor applies the field rules. The zero value is not usable; build
// one with New. An Extractor is immutable and safe for concurrent use.
type Extractor struct {
	anchors []compiledAnchor
}

// New returns an Extractor using the given known-supplier anchors.
// Pass DefaultAnchors() when no table is configured.
func New(anchors []Anchor) *Extractor {
	return &Extractor{anchors: compileAnchors(anchors)}
}

// Extract runs every field rule over text.
func (e *Extractor) Extract(text string) Fields {
	text = normalizeText(text)

	fields := Fields{
		InvoiceNumber: findInvoiceNumber(text),
		IssueDate:     findIssueDate(text),
		DueDate:       findDueDate(text),
		VATRate:       findVATRate(text),
		Items:         findLineItems(text),
	}

	if raw := findTotal(text); raw != "" {
		fields.TotalAmount = ptr(raw)
		if v, ok := NormalizeAmount(raw); ok {
			fields.TotalAmountValue = ptr(v)
		}
	}
	if raw := findVATAmount(text); raw != "" {
		fields.VATAmount = ptr(raw)
		if v, ok := NormalizeAmount(raw); ok {
			fields.VATAmountValue = ptr(v)
		}
	}

	fields.Supplier = e.findSupplier(text)
	if customer := findCustomer(text); !customer.empty() {
		fields.Customer = &customer
	}
	if payment := findPayment(text); !payment.empty() {
		fields.Payment = &payment
	}

	return fields
}

// ExtractWithFragments is Extract for callers holding OCR fragments. The
// fragments only matter when text is blank: they are then joined line by
// line and used as the text.
func (e *Extractor) ExtractWithFragments(text string, fragments []Fragment) Fields {
	if strings.TrimSpace(text) == "" && len(fragments) > 0 {
		parts := make([]string, 0, len(fragments))
		for _, f := range fragments {
			if t := strings.TrimSpace(f.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, "\n")
	}
	return e.Extract(text)
}

var spaceReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u00a0", " ", // no-break space
	"\u2007", " ", // figure space
	"\u202f", " ", // narrow no-break space
	"\u2009", " ", // thin space
)

// normalizeText folds the whitespace variants OCR engines and Office
// exporters emit into plain spaces and newlines; RE2's \s only knows ASCII.
func normalizeText(text string) string {
	return spaceReplacer.Replace(text)
}
