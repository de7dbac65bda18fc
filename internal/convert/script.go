package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"stroycrm/internal/extract"
	"stroycrm/pkg/config"

	"go.uber.org/zap"
)

// ScriptConverter shells out to the Python conversion scripts:
//
//	pdf_to_images.py <file> <dpi> <maxPages>
//	extract_office_text.py <file>
//
// Both read a file path and print one JSON object on stdout.
type ScriptConverter struct {
	python       string
	pdfScript    string
	officeScript string
	runner       Runner
	logger       *zap.Logger
}

func NewScriptConverter(cfg config.ConverterConfig, runner Runner, logger *zap.Logger) *ScriptConverter {
	return &ScriptConverter{
		python:       cfg.Python,
		pdfScript:    cfg.PDFScript,
		officeScript: cfg.OfficeScript,
		runner:       runner,
		logger:       logger,
	}
}

type rasterOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Pages   []struct {
		Page  int    `json:"page"`
		Image string `json:"image"`
	} `json:"pages"`
}

type officeOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Text    string `json:"text"`
}

func (c *ScriptConverter) Rasterize(ctx context.Context, pdf []byte, dpi, maxPages int) ([]Page, error) {
	path, cleanup, err := writeTemp("pdf", pdf)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	stdout, err := c.run(ctx, c.pdfScript, path, strconv.Itoa(dpi), strconv.Itoa(maxPages))
	if err != nil {
		return nil, err
	}

	var out rasterOutput
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &out); err != nil {
		return nil, fmt.Errorf("%w: rasterizer printed invalid JSON: %v", ErrConversion, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: %s", ErrConversion, out.Error)
	}
	if len(out.Pages) == 0 {
		return nil, fmt.Errorf("%w: rasterizer returned no pages", ErrConversion)
	}

	pages := make([]Page, 0, len(out.Pages))
	for i, p := range out.Pages {
		img, err := decodeImage(p.Image)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrConversion, p.Page, err)
		}
		n := p.Page
		if n == 0 {
			n = i + 1
		}
		pages = append(pages, Page{Number: n, Image: img})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })

	c.logger.Info("PDF rasterized",
		zap.Int("pages", len(pages)),
		zap.Int("dpi", dpi),
	)
	return pages, nil
}

func (c *ScriptConverter) ExtractText(ctx context.Context, ext string, data []byte) (OfficeText, error) {
	path, cleanup, err := writeTemp(ext, data)
	if err != nil {
		return OfficeText{}, err
	}
	defer cleanup()

	stdout, err := c.run(ctx, c.officeScript, path)
	if err != nil {
		return OfficeText{}, err
	}
	return parseOfficeOutput(stdout)
}

// parseOfficeOutput accepts the JSON object or, from older script
// versions, a plain report starting with "Номер счета:".
func parseOfficeOutput(stdout []byte) (OfficeText, error) {
	s := strings.TrimSpace(string(stdout))
	switch {
	case strings.HasPrefix(s, "{"):
		var out officeOutput
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return OfficeText{}, fmt.Errorf("%w: extractor printed invalid JSON: %v", ErrConversion, err)
		}
		if !out.Success {
			return OfficeText{}, fmt.Errorf("%w: %s", ErrConversion, out.Error)
		}
		return OfficeText{Text: out.Text, Report: extract.IsLegacyReport(out.Text)}, nil
	case extract.IsLegacyReport(s):
		return OfficeText{Text: s, Report: true}, nil
	case s == "":
		return OfficeText{}, fmt.Errorf("%w: extractor printed nothing", ErrConversion)
	default:
		return OfficeText{}, fmt.Errorf("%w: unrecognized extractor output", ErrConversion)
	}
}

func (c *ScriptConverter) run(ctx context.Context, script string, args ...string) ([]byte, error) {
	stdout, stderr, err := c.runner.Run(ctx, c.python, append([]string{script}, args...)...)
	if err == nil {
		return stdout, nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	// Scripts report their own failures as JSON and may still exit non-zero.
	var out officeOutput
	if json.Unmarshal(bytes.TrimSpace(stdout), &out) == nil && out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrConversion, out.Error)
	}
	return nil, fmt.Errorf("%w: %s: %v: %s", ErrConversion, script, err, truncate(strings.TrimSpace(string(stderr)), 512))
}

func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(s)
}

func writeTemp(ext string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "stroycrm-*."+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}
