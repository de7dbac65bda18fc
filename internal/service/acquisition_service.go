package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"stroycrm/internal/convert"
	"stroycrm/internal/ocr"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AcceptedFormats lists the file extensions the dispatcher handles.
var AcceptedFormats = []string{
	"jpg", "jpeg", "png", "webp", "heic", "heif", "tif", "tiff",
	"pdf",
	"xlsx", "xls", "docx", "doc",
	"txt",
}

type formatKind int

const (
	kindUnsupported formatKind = iota
	kindImage
	kindPDF
	kindOffice
	kindText
)

var formatKinds = map[string]formatKind{
	"jpg": kindImage, "jpeg": kindImage, "png": kindImage, "webp": kindImage,
	"heic": kindImage, "heif": kindImage, "tif": kindImage, "tiff": kindImage,
	"xlsx": kindOffice, "xls": kindOffice, "docx": kindOffice, "doc": kindOffice,
	"pdf": kindPDF, "txt": kindText,
}

var mimeFormats = map[string]string{
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"image/heif":      "heif",
	"image/tiff":      "tiff",
	"application/pdf": "pdf",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       "xlsx",
	"application/vnd.ms-excel":                                                "xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/msword": "doc",
	"text/plain":         "txt",
}

// Acquisition methods reported to the client.
const (
	MethodImageOCR     = "ocr"
	MethodPDFOCR       = "pdf_ocr"
	MethodOffice       = "office"
	MethodOfficeReport = "office_report"
	MethodPlainText    = "text"
)

const (
	minDPI = 72
	maxDPI = 600
)

// PageRecognizer is the OCR surface the dispatcher needs; *ocr.Adapter
// implements it.
type PageRecognizer interface {
	Recognize(ctx context.Context, image []byte) (ocr.Result, error)
	Ready() bool
}

// PageCounter reads the page count of a PDF without rendering it.
type PageCounter interface {
	PageCount(pdf []byte) (int, error)
}

// UploadedDocument is one file as received from the client.
type UploadedDocument struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Acquisition is the text read out of a document.
type Acquisition struct {
	Text      string
	Fragments []ocr.Fragment
	Format    string
	Method    string
	Pages     int
	// TotalPages is the page count of the whole PDF; Pages is less when
	// only the first MaxPages were processed.
	TotalPages int
	OCRMode    string
	// Report is set when Text is the Office converter's "Номер счета:"
	// summary rather than document text.
	Report bool
}

type AcquisitionConfig struct {
	MaxFileMB       int
	DefaultDPI      int
	MaxPages        int
	PageConcurrency int
	EnhanceImages   bool
}

// AcquisitionService routes a document to OCR, PDF rasterization, Office
// extraction or a plain read depending on its format.
type AcquisitionService struct {
	recognizer  PageRecognizer
	rasterizer  convert.Rasterizer
	office      convert.TextExtractor
	pageCounter PageCounter
	cfg         AcquisitionConfig
	logger      *zap.Logger
}

func NewAcquisitionService(
	recognizer PageRecognizer,
	rasterizer convert.Rasterizer,
	office convert.TextExtractor,
	cfg AcquisitionConfig,
	logger *zap.Logger,
) *AcquisitionService {
	if cfg.DefaultDPI == 0 {
		cfg.DefaultDPI = 200
	}
	if cfg.PageConcurrency < 1 {
		cfg.PageConcurrency = 1
	}
	return &AcquisitionService{
		recognizer:  recognizer,
		rasterizer:  rasterizer,
		office:      office,
		pageCounter: pdfcpuPageCounter{},
		cfg:         cfg,
		logger:      logger,
	}
}

// MaxFileMB is the upload size limit.
func (s *AcquisitionService) MaxFileMB() int {
	return s.cfg.MaxFileMB
}

// OCRReady reports whether image-bearing formats can be processed.
func (s *AcquisitionService) OCRReady() bool {
	return s.recognizer != nil && s.recognizer.Ready()
}

// Acquire reads the text of doc. dpi overrides the PDF rasterization
// resolution when positive. Empty text is a valid result; every error is
// a *RecognitionError.
func (s *AcquisitionService) Acquire(ctx context.Context, doc *UploadedDocument, dpi int) (*Acquisition, error) {
	format, err := s.validate(doc)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var acq *Acquisition
	switch formatKinds[format] {
	case kindImage:
		acq, err = s.fromImage(ctx, doc.Data)
	case kindPDF:
		acq, err = s.fromPDF(ctx, doc.Data, dpi)
	case kindOffice:
		acq, err = s.fromOffice(ctx, format, doc.Data)
	case kindText:
		acq = &Acquisition{Text: sanitizeUTF8(string(doc.Data)), Method: MethodPlainText}
	}
	if err != nil {
		s.logger.Error("Text acquisition failed",
			zap.String("file", doc.Name),
			zap.String("format", format),
			zap.Int("size", len(doc.Data)),
			zap.Error(err),
		)
		return nil, err
	}

	acq.Format = format
	s.logger.Info("Text acquired",
		zap.String("file", doc.Name),
		zap.String("format", format),
		zap.String("method", acq.Method),
		zap.Int("pages", acq.Pages),
		zap.Int("text_length", len(acq.Text)),
		zap.Duration("duration", time.Since(start)),
	)
	return acq, nil
}

func (s *AcquisitionService) validate(doc *UploadedDocument) (string, error) {
	switch {
	case doc == nil || (doc.Name == "" && len(doc.Data) == 0):
		return "", validationError(msgNoFile, s.cfg.MaxFileMB, nil)
	case len(doc.Data) == 0:
		return "", validationError(msgEmptyFile, s.cfg.MaxFileMB, nil)
	case s.cfg.MaxFileMB > 0 && len(doc.Data) > s.cfg.MaxFileMB<<20:
		return "", validationError(msgFileTooLarge, s.cfg.MaxFileMB,
			fmt.Errorf("%w: %d bytes, limit %d MB", ErrFileTooLarge, len(doc.Data), s.cfg.MaxFileMB))
	}

	format := ResolveFormat(doc.Name, doc.MIMEType, doc.Data)
	if format == "" {
		return "", validationError(msgUnsupported, s.cfg.MaxFileMB,
			fmt.Errorf("unsupported file %q (%s)", doc.Name, doc.MIMEType))
	}
	return format, nil
}

// ResolveFormat picks the processing format from the file extension, then
// the declared MIME type, then the content itself. Content sniffed as an
// image or PDF overrides a disagreeing extension. It returns "" for
// unsupported files.
func ResolveFormat(name, mimeType string, data []byte) string {
	sniffed := strings.TrimPrefix(mimetype.Detect(data).Extension(), ".")
	sniffedKind := formatKinds[sniffed]

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if kind, ok := formatKinds[ext]; ok {
		if (sniffedKind == kindImage || sniffedKind == kindPDF) && sniffedKind != kind {
			return sniffed
		}
		return ext
	}

	declared, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	if format, ok := mimeFormats[strings.TrimSpace(declared)]; ok {
		if (sniffedKind == kindImage || sniffedKind == kindPDF) && sniffedKind != formatKinds[format] {
			return sniffed
		}
		return format
	}

	if sniffedKind != kindUnsupported {
		return sniffed
	}
	return ""
}

func (s *AcquisitionService) fromImage(ctx context.Context, data []byte) (*Acquisition, error) {
	if !s.OCRReady() {
		return nil, configurationError(ocr.ErrNotConfigured)
	}
	if s.cfg.EnhanceImages {
		data = enhanceImage(data, s.logger)
	}

	res, err := s.recognizer.Recognize(ctx, data)
	if err != nil {
		return nil, classifyOCRError(err)
	}
	return &Acquisition{
		Text:      res.Text,
		Fragments: res.Fragments,
		Method:    MethodImageOCR,
		Pages:     1,
		OCRMode:   string(res.Mode),
	}, nil
}

func (s *AcquisitionService) fromPDF(ctx context.Context, data []byte, dpi int) (*Acquisition, error) {
	if !s.OCRReady() {
		return nil, configurationError(ocr.ErrNotConfigured)
	}
	if s.rasterizer == nil {
		return nil, configurationError(errors.New("no PDF rasterizer configured"))
	}

	// A page tree pdfcpu cannot read is logged and rasterization still runs.
	total, err := s.pageCounter.PageCount(data)
	switch {
	case err != nil:
		s.logger.Warn("Could not read PDF page count", zap.Error(err))
		total = 0
	case total == 0:
		return nil, processingError(fmt.Errorf("%w: PDF has no pages", convert.ErrConversion))
	case s.cfg.MaxPages > 0 && total > s.cfg.MaxPages:
		s.logger.Warn("PDF has more pages than will be processed",
			zap.Int("total_pages", total),
			zap.Int("max_pages", s.cfg.MaxPages),
		)
	}

	dpi = s.clampDPI(dpi)
	pages, err := s.rasterizer.Rasterize(ctx, data, dpi, s.cfg.MaxPages)
	if err != nil {
		return nil, processingError(fmt.Errorf("rasterize PDF: %w", err))
	}
	if len(pages) == 0 {
		return nil, processingError(fmt.Errorf("rasterize PDF: %w: no pages", convert.ErrConversion))
	}

	results := make([]ocr.Result, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			res, err := s.recognizer.Recognize(gctx, page.Image)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Number, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classifyOCRError(err)
	}

	texts := make([]string, len(results))
	var fragments []ocr.Fragment
	mode := ""
	for i, res := range results {
		texts[i] = res.Text
		fragments = append(fragments, res.Fragments...)
		switch {
		case i == 0:
			mode = string(res.Mode)
		case mode != string(res.Mode):
			mode = "mixed"
		}
	}

	return &Acquisition{
		Text:       strings.Join(texts, "\n"),
		Fragments:  fragments,
		Method:     MethodPDFOCR,
		Pages:      len(pages),
		TotalPages: max(total, len(pages)),
		OCRMode:    mode,
	}, nil
}

type pdfcpuPageCounter struct{}

// PageCount reads the page tree with pdfcpu. Malformed files can make
// pdfcpu panic; that is reported as an error.
func (pdfcpuPageCounter) PageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()
	return api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
}

func (s *AcquisitionService) clampDPI(dpi int) int {
	if dpi <= 0 {
		return s.cfg.DefaultDPI
	}
	return min(max(dpi, minDPI), maxDPI)
}

func (s *AcquisitionService) fromOffice(ctx context.Context, format string, data []byte) (*Acquisition, error) {
	if s.office == nil {
		return nil, configurationError(errors.New("no Office text extractor configured"))
	}
	out, err := s.office.ExtractText(ctx, format, data)
	if err != nil {
		return nil, processingError(fmt.Errorf("extract %s text: %w", format, err))
	}

	method := MethodOffice
	if out.Report {
		method = MethodOfficeReport
	}
	return &Acquisition{
		Text:   sanitizeUTF8(out.Text),
		Method: method,
		Report: out.Report,
	}, nil
}

func classifyOCRError(err error) *RecognitionError {
	if errors.Is(err, ocr.ErrNotConfigured) {
		return configurationError(err)
	}
	return processingError(fmt.Errorf("ocr: %w", err))
}
