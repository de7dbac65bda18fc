package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// XLSXExtractor reads .xlsx workbooks in-process and hands every other
// format, and workbooks excelize cannot open, to fallback.
type XLSXExtractor struct {
	fallback TextExtractor
	logger   *zap.Logger
}

func NewXLSXExtractor(fallback TextExtractor, logger *zap.Logger) *XLSXExtractor {
	return &XLSXExtractor{fallback: fallback, logger: logger}
}

func (x *XLSXExtractor) ExtractText(ctx context.Context, ext string, data []byte) (OfficeText, error) {
	if ext == "xlsx" {
		text, err := WorkbookText(data)
		if err == nil {
			return OfficeText{Text: text}, nil
		}
		if x.fallback == nil {
			return OfficeText{}, err
		}
		x.logger.Warn("excelize could not read workbook, using script extractor", zap.Error(err))
	}
	if x.fallback == nil {
		return OfficeText{}, fmt.Errorf("%w: no extractor for .%s", ErrConversion, ext)
	}
	return x.fallback.ExtractText(ctx, ext, data)
}

// WorkbookText flattens every sheet of an .xlsx workbook: cells joined by
// tabs, rows by newlines, sheets separated by an empty line. Empty rows
// are skipped.
func WorkbookText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: open workbook: %v", ErrConversion, err)
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("%w: read sheet %q: %v", ErrConversion, name, err)
		}
		var lines []string
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			sheets = append(sheets, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}
