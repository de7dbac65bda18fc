package dto

import "stroycrm/internal/extract"

type InvoiceResponse struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"projectId"`
	UserID        string          `json:"userId"`
	FileName      string          `json:"fileName"`
	FileSize      int64           `json:"fileSize"`
	MimeType      string          `json:"mimeType"`
	Status        string          `json:"status"`
	InvoiceNumber *string         `json:"invoiceNumber,omitempty"`
	IssueDate     *string         `json:"issueDate,omitempty"`
	DueDate       *string         `json:"dueDate,omitempty"`
	TotalAmount   *float64        `json:"totalAmount,omitempty"`
	VATAmount     *float64        `json:"vatAmount,omitempty"`
	SupplierName  *string         `json:"supplierName,omitempty"`
	SupplierINN   *string         `json:"supplierInn,omitempty"`
	Fields        *extract.Fields `json:"invoiceData,omitempty"`
	RawText       string          `json:"rawText,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
}

type InvoiceListResponse struct {
	Invoices []InvoiceResponse `json:"invoices"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// UpdateInvoiceRequest replaces the field record and/or moves the status.
// Nil members are left unchanged.
type UpdateInvoiceRequest struct {
	Fields *extract.Fields `json:"invoiceData,omitempty"`
	Status *string         `json:"status,omitempty" validate:"omitempty,oneof=draft confirmed"`
}
