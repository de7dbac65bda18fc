package models

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusConfirmed InvoiceStatus = "confirmed"
)

// Invoice is a recognized invoice bound to a CRM project. The flat
// columns are denormalized from Fields for listing and filtering.
type Invoice struct {
	ID              uuid.UUID     `db:"id"`
	ProjectID       uuid.UUID     `db:"project_id"`
	UserID          uuid.UUID     `db:"user_id"`
	FileName        string        `db:"file_name"`
	FileSize        int64         `db:"file_size"`
	MimeType        string        `db:"mime_type"`
	InvoiceNumber   *string       `db:"invoice_number"`
	IssueDate       *time.Time    `db:"issue_date"`
	DueDate         *time.Time    `db:"due_date"`
	TotalAmount     *float64      `db:"total_amount"`
	VATAmount       *float64      `db:"vat_amount"`
	VATRate         *string       `db:"vat_rate"`
	SupplierName    *string       `db:"supplier_name"`
	SupplierINN     *string       `db:"supplier_inn"`
	SupplierKPP     *string       `db:"supplier_kpp"`
	SupplierAddress *string       `db:"supplier_address"`
	Fields          []byte        `db:"fields"` // jsonb, the whole extracted record
	RawText         string        `db:"raw_text"`
	Status          InvoiceStatus `db:"status"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}
