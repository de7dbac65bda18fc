// Package fitzraster renders PDF pages in-process with MuPDF.
package fitzraster

import (
	"bytes"
	"context"
	"fmt"

	"stroycrm/internal/convert"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Rasterizer implements convert.Rasterizer without the Python script.
type Rasterizer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Rasterizer {
	return &Rasterizer{logger: logger}
}

func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte, dpi, maxPages int) ([]convert.Page, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %v", convert.ErrConversion, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	n := total
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", convert.ErrConversion)
	}

	pages := make([]convert.Page, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("%w: render page %d: %v", convert.ErrConversion, i+1, err)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("%w: encode page %d: %v", convert.ErrConversion, i+1, err)
		}
		pages = append(pages, convert.Page{Number: i + 1, Image: buf.Bytes()})
	}

	r.logger.Info("PDF rasterized with MuPDF",
		zap.Int("pages", len(pages)),
		zap.Int("total_pages", total),
		zap.Int("dpi", dpi),
	)
	return pages, nil
}
