package dto

import "stroycrm/internal/extract"

// FileInfo echoes the upload as the client declared it. Format is the
// format the server actually processed it as.
type FileInfo struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// RecognitionResponse is the single payload of the recognize endpoint,
// for successes and failures alike. InvoiceData and ExtractedData carry
// the same record; older clients read the latter.
type RecognitionResponse struct {
	Success       bool            `json:"success"`
	Outcome       string          `json:"outcome,omitempty"`
	RawText       string          `json:"rawText"`
	RawTextLength int             `json:"rawTextLength"`
	Truncated     bool            `json:"truncated"`
	InvoiceData   *extract.Fields `json:"invoiceData,omitempty"`
	ExtractedData *extract.Fields `json:"extractedData,omitempty"`
	File          *FileInfo       `json:"file,omitempty"`
	Pages         int             `json:"pages,omitempty"`
	TotalPages    int             `json:"totalPages,omitempty"`
	OCRMode       string          `json:"ocrMode,omitempty"`
	Method        string          `json:"method,omitempty"`
	Assisted      []string        `json:"assistedFields,omitempty"`
	InvoiceID     string          `json:"invoiceId,omitempty"`
	Error         string          `json:"error,omitempty"`
	Suggestions   []string        `json:"suggestions,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
}

type FormatsResponse struct {
	Formats   []string `json:"formats"`
	MaxFileMB int      `json:"maxFileMb"`
}
