// Package convert turns PDF and Office documents into OCR-ready page
// images or plain text. The heavy lifting happens in external tools
// (Python scripts, MuPDF, excelize); this package is the boundary.
package convert

import (
	"context"
	"errors"
)

var (
	// ErrConversion means the input could not be converted.
	ErrConversion = errors.New("document conversion failed")
	// ErrTimeout means the converter was killed after its time budget.
	ErrTimeout = errors.New("document conversion timed out")
)

// Page is one rasterized PDF page, numbered from 1.
type Page struct {
	Number int
	Image  []byte
}

// Rasterizer renders PDF pages to images in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, dpi, maxPages int) ([]Page, error)
}

// OfficeText is the text pulled out of an Office document. Report is set
// when the extractor fell back to its human-readable "Номер счета:"
// summary instead of the document text.
type OfficeText struct {
	Text   string
	Report bool
}

// TextExtractor reads text out of an Office document. ext is the
// lower-case file extension without the dot ("xlsx", "docx", ...).
type TextExtractor interface {
	ExtractText(ctx context.Context, ext string, data []byte) (OfficeText, error)
}
