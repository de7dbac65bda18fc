package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"stroycrm/internal/convert"
	"stroycrm/internal/extract"
	"stroycrm/internal/ocr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const invoiceText = "Счет № АБ-123 от 5 марта 2024\nПоставщик: ООО Ромашка ИНН 1234567890\nИтого: 15 000,50\nНДС: 2 500"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func str(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

// fakeRecognizer returns texts keyed by image content.
type fakeRecognizer struct {
	mu       sync.Mutex
	notReady bool
	texts    map[string]string
	text     string
	err      error
	panicMsg string
	calls    int
}

func (f *fakeRecognizer) Ready() bool { return !f.notReady }

func (f *fakeRecognizer) Recognize(_ context.Context, image []byte) (ocr.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	text := f.text
	if t, ok := f.texts[string(image)]; ok {
		text = t
	}
	return ocr.Result{Text: text, Mode: ocr.ModeDocument}, nil
}

type fakeRasterizer struct {
	pages []convert.Page
	err   error
	dpi   int
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _ []byte, dpi, _ int) ([]convert.Page, error) {
	f.dpi = dpi
	return f.pages, f.err
}

type fakePageCounter struct {
	n   int
	err error
}

func (f fakePageCounter) PageCount([]byte) (int, error) { return f.n, f.err }

type fakeOffice struct {
	out convert.OfficeText
	err error
	ext string
}

func (f *fakeOffice) ExtractText(_ context.Context, ext string, _ []byte) (convert.OfficeText, error) {
	f.ext = ext
	return f.out, f.err
}

type fakeDrafts struct {
	saved []*Draft
	err   error
}

func (f *fakeDrafts) CreateDraft(_ context.Context, d *Draft) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.saved = append(f.saved, d)
	return uuid.New(), nil
}

type pipeline struct {
	recognizer *fakeRecognizer
	rasterizer *fakeRasterizer
	office     *fakeOffice
	drafts     *fakeDrafts
	limit      int
	assistant  FieldAssistant
	pageCount  *fakePageCounter
}

func (p *pipeline) build() *RecognitionService {
	if p.recognizer == nil {
		p.recognizer = &fakeRecognizer{}
	}
	if p.rasterizer == nil {
		p.rasterizer = &fakeRasterizer{}
	}
	if p.office == nil {
		p.office = &fakeOffice{}
	}
	if p.drafts == nil {
		p.drafts = &fakeDrafts{}
	}
	if p.limit == 0 {
		p.limit = 5000
	}
	acq := NewAcquisitionService(p.recognizer, p.rasterizer, p.office, AcquisitionConfig{
		MaxFileMB:       1,
		DefaultDPI:      200,
		MaxPages:        10,
		PageConcurrency: 2,
	}, zap.NewNop())
	if p.pageCount != nil {
		acq.pageCounter = *p.pageCount
	}
	return NewRecognitionService(acq, extract.New(extract.DefaultAnchors()), p.assistant, p.drafts, p.limit, zap.NewNop())
}

func imageDoc(name string) *UploadedDocument {
	return &UploadedDocument{Name: name, MIMEType: "image/png", Data: pngHeader}
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var rerr *RecognitionError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *RecognitionError", err)
	}
	return rerr.Kind
}

func TestRecognizeImage(t *testing.T) {
	p := &pipeline{recognizer: &fakeRecognizer{text: invoiceText}}
	resp, err := p.build().Recognize(context.Background(), imageDoc("invoice.png"), RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	if !resp.Success || resp.Outcome != OutcomeExtracted {
		t.Fatalf("success=%v outcome=%q", resp.Success, resp.Outcome)
	}
	if resp.InvoiceData == nil || resp.InvoiceData != resp.ExtractedData {
		t.Fatal("invoiceData and extractedData must carry the same record")
	}
	f := resp.InvoiceData
	if str(f.InvoiceNumber) != "АБ-123" || str(f.IssueDate) != "2024-03-05" || str(f.Supplier.INN) != "1234567890" {
		t.Errorf("fields = %+v", f)
	}
	if resp.RawText != invoiceText || resp.Truncated {
		t.Errorf("rawText %q truncated=%v", resp.RawText, resp.Truncated)
	}
	if resp.File == nil || resp.File.Name != "invoice.png" || resp.File.Type != "image/png" || resp.File.Format != "png" {
		t.Errorf("file = %+v", resp.File)
	}
	if resp.Method != MethodImageOCR || resp.Pages != 1 || resp.OCRMode != "document" {
		t.Errorf("method=%q pages=%d mode=%q", resp.Method, resp.Pages, resp.OCRMode)
	}
}

func TestRecognizeNoText(t *testing.T) {
	p := &pipeline{recognizer: &fakeRecognizer{text: ""}}
	resp, err := p.build().Recognize(context.Background(), imageDoc("blank.png"), RecognizeOptions{})
	if err != nil {
		t.Fatalf("no text must not be an error, got %v", err)
	}
	if resp.Success || resp.Outcome != OutcomeNoText {
		t.Fatalf("success=%v outcome=%q", resp.Success, resp.Outcome)
	}
	if resp.Error != msgNoTextDetected {
		t.Errorf("error = %q", resp.Error)
	}
	if len(resp.Suggestions) == 0 || resp.Suggestions[0] != noTextSuggestions[0] {
		t.Errorf("suggestions = %v, want image quality hints", resp.Suggestions)
	}
	if resp.InvoiceData != nil {
		t.Error("no record expected without text")
	}
}

func TestRecognizeProseIsNotAFailure(t *testing.T) {
	p := &pipeline{recognizer: &fakeRecognizer{text: "Сегодня хорошая погода, мы гуляли в парке и обсуждали планы на выходные."}}
	resp, err := p.build().Recognize(context.Background(), imageDoc("letter.png"), RecognizeOptions{})
	if err != nil || !resp.Success {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
	if got := len(resp.InvoiceData.Missing()); got != 9 {
		t.Errorf("missing %d fields, want 9", got)
	}
	if resp.InvoiceData.Items == nil {
		t.Error("items must be an empty list, not nil")
	}
}

func TestRecognizeTruncatesRawText(t *testing.T) {
	p := &pipeline{recognizer: &fakeRecognizer{text: invoiceText}, limit: 10}
	resp, err := p.build().Recognize(context.Background(), imageDoc("invoice.png"), RecognizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Truncated || resp.RawText != "Счет № АБ-..." {
		t.Errorf("rawText = %q truncated=%v", resp.RawText, resp.Truncated)
	}
	if resp.RawTextLength != len([]rune(invoiceText)) {
		t.Errorf("rawTextLength = %d", resp.RawTextLength)
	}
	if str(resp.InvoiceData.InvoiceNumber) != "АБ-123" {
		t.Error("fields must come from the full text")
	}
}

func TestRecognizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		p       *pipeline
		doc     *UploadedDocument
		kind    ErrorKind
		message string
	}{
		{"no file", &pipeline{}, nil, KindValidation, msgNoFile},
		{"empty file", &pipeline{}, &UploadedDocument{Name: "a.png"}, KindValidation, msgEmptyFile},
		{"too large", &pipeline{}, &UploadedDocument{Name: "a.png", Data: make([]byte, 1<<20+1)}, KindValidation, msgFileTooLarge},
		{"unsupported", &pipeline{}, &UploadedDocument{Name: "setup.exe", Data: []byte("MZ\x90\x00\x03\x00\x00\x00")}, KindValidation, msgUnsupported},
		{"ocr not configured", &pipeline{recognizer: &fakeRecognizer{notReady: true}}, imageDoc("a.png"), KindConfiguration, msgNotConfigured},
		{"ocr credentials rejected", &pipeline{recognizer: &fakeRecognizer{err: fmt.Errorf("vision: %w", ocr.ErrNotConfigured)}}, imageDoc("a.png"), KindConfiguration, msgNotConfigured},
		{"ocr network failure", &pipeline{recognizer: &fakeRecognizer{err: errors.New("dial tcp: connection refused")}}, imageDoc("a.png"), KindProcessing, msgProcessing},
		{"office converter fails", &pipeline{office: &fakeOffice{err: fmt.Errorf("%w: corrupt", convert.ErrConversion)}}, &UploadedDocument{Name: "act.docx", Data: []byte("doc")}, KindProcessing, msgProcessing},
		{"panic", &pipeline{recognizer: &fakeRecognizer{panicMsg: "boom"}}, imageDoc("a.png"), KindProcessing, msgProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.p.build().Recognize(context.Background(), tt.doc, RecognizeOptions{})
			if kind := kindOf(t, err); kind != tt.kind {
				t.Errorf("kind = %s, want %s", kind, tt.kind)
			}
			if resp == nil || resp.Success {
				t.Fatalf("resp = %+v, want a failure payload", resp)
			}
			if resp.Error != tt.message {
				t.Errorf("error = %q, want %q", resp.Error, tt.message)
			}
			if n := len(resp.Suggestions); n < 2 || n > 4 {
				t.Errorf("got %d suggestions, want 2-4", n)
			}
			for _, leak := range []string{"dial tcp", "corrupt", "boom"} {
				if strings.Contains(resp.Error, leak) || strings.Contains(strings.Join(resp.Suggestions, " "), leak) {
					t.Errorf("internal detail %q leaked to client", leak)
				}
			}
		})
	}
}

func TestRecognizeValidationRunsBeforeOCR(t *testing.T) {
	rec := &fakeRecognizer{text: invoiceText}
	p := &pipeline{recognizer: rec}
	_, _ = p.build().Recognize(context.Background(), &UploadedDocument{Name: "a.png", Data: make([]byte, 2<<20)}, RecognizeOptions{})
	if rec.calls != 0 {
		t.Errorf("OCR called %d times for an oversized file", rec.calls)
	}
}

func TestRecognizePDF(t *testing.T) {
	rec := &fakeRecognizer{texts: map[string]string{
		"page-1": "Счет № 7 от 01.02.2024",
		"page-2": "Поставщик: ООО Ромашка",
		"page-3": "Итого: 100,00",
	}}
	raster := &fakeRasterizer{pages: []convert.Page{
		{Number: 1, Image: []byte("page-1")},
		{Number: 2, Image: []byte("page-2")},
		{Number: 3, Image: []byte("page-3")},
	}}
	p := &pipeline{recognizer: rec, rasterizer: raster}
	doc := &UploadedDocument{Name: "scan.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4\n%fake")}

	resp, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	want := "Счет № 7 от 01.02.2024\nПоставщик: ООО Ромашка\nИтого: 100,00"
	if resp.RawText != want {
		t.Errorf("rawText = %q, want pages joined in order", resp.RawText)
	}
	if resp.Pages != 3 || resp.Method != MethodPDFOCR {
		t.Errorf("pages=%d method=%q", resp.Pages, resp.Method)
	}
	if raster.dpi != 200 {
		t.Errorf("dpi = %d, want default 200", raster.dpi)
	}
	if str(resp.InvoiceData.InvoiceNumber) != "7" || str(resp.InvoiceData.TotalAmount) != "100,00" {
		t.Errorf("fields = %+v", resp.InvoiceData)
	}
}

func TestRecognizePDFPageLimit(t *testing.T) {
	pages := make([]convert.Page, 10)
	for i := range pages {
		pages[i] = convert.Page{Number: i + 1, Image: []byte("p")}
	}
	p := &pipeline{
		recognizer: &fakeRecognizer{text: "Счет № 9"},
		rasterizer: &fakeRasterizer{pages: pages},
		pageCount:  &fakePageCounter{n: 25},
	}
	doc := &UploadedDocument{Name: "scan.pdf", Data: []byte("%PDF-1.4\n")}

	resp, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if resp.Pages != 10 || resp.TotalPages != 25 {
		t.Errorf("pages=%d totalPages=%d, want 10 of 25", resp.Pages, resp.TotalPages)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != "Обработаны первые 10 из 25 страниц" {
		t.Errorf("warnings = %q", resp.Warnings)
	}
}

func TestRecognizePDFPageCount(t *testing.T) {
	doc := &UploadedDocument{Name: "scan.pdf", Data: []byte("%PDF-1.4\n")}
	onePage := []convert.Page{{Number: 1, Image: []byte("p")}}

	t.Run("empty page tree", func(t *testing.T) {
		p := &pipeline{recognizer: &fakeRecognizer{text: "x"}, rasterizer: &fakeRasterizer{pages: onePage}, pageCount: &fakePageCounter{}}
		_, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{})
		if kindOf(t, err) != KindProcessing || !errors.Is(err, convert.ErrConversion) {
			t.Errorf("err = %v, want processing wrapping ErrConversion", err)
		}
		if p.rasterizer.dpi != 0 {
			t.Error("rasterizer ran for a PDF without pages")
		}
	})

	t.Run("unreadable page tree", func(t *testing.T) {
		p := &pipeline{recognizer: &fakeRecognizer{text: "x"}, rasterizer: &fakeRasterizer{pages: onePage}, pageCount: &fakePageCounter{err: errors.New("xref broken")}}
		resp, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{})
		if err != nil {
			t.Fatalf("Recognize: %v", err)
		}
		if resp.Pages != 1 || resp.TotalPages != 1 || len(resp.Warnings) != 0 {
			t.Errorf("pages=%d total=%d warnings=%q", resp.Pages, resp.TotalPages, resp.Warnings)
		}
	})

	t.Run("pdfcpu on garbage", func(t *testing.T) {
		if _, err := (pdfcpuPageCounter{}).PageCount([]byte("%PDF-1.4\n%fake")); err == nil {
			t.Error("PageCount accepted a PDF without a page tree")
		}
	})
}

func TestPDFDPIClamped(t *testing.T) {
	for _, tt := range []struct{ in, want int }{{0, 200}, {10, 72}, {300, 300}, {1200, 600}} {
		raster := &fakeRasterizer{pages: []convert.Page{{Number: 1, Image: []byte("p")}}}
		p := &pipeline{recognizer: &fakeRecognizer{text: "x"}, rasterizer: raster}
		doc := &UploadedDocument{Name: "scan.pdf", Data: []byte("%PDF-1.4\n")}
		if _, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{DPI: tt.in}); err != nil {
			t.Fatal(err)
		}
		if raster.dpi != tt.want {
			t.Errorf("dpi %d -> %d, want %d", tt.in, raster.dpi, tt.want)
		}
	}
}

func TestRecognizePDFFailures(t *testing.T) {
	doc := &UploadedDocument{Name: "scan.pdf", Data: []byte("%PDF-1.4\n")}

	p := &pipeline{recognizer: &fakeRecognizer{text: "x"}, rasterizer: &fakeRasterizer{err: fmt.Errorf("%w after 90s", convert.ErrTimeout)}}
	_, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{})
	if kindOf(t, err) != KindProcessing || !errors.Is(err, convert.ErrTimeout) {
		t.Errorf("err = %v, want processing wrapping ErrTimeout", err)
	}

	p = &pipeline{recognizer: &fakeRecognizer{notReady: true}, rasterizer: &fakeRasterizer{}}
	_, err = p.build().Recognize(context.Background(), doc, RecognizeOptions{})
	if kindOf(t, err) != KindConfiguration {
		t.Errorf("err = %v, want configuration", err)
	}
	if p.rasterizer.dpi != 0 {
		t.Error("rasterizer must not run without OCR")
	}
}

func TestRecognizeOfficeReport(t *testing.T) {
	office := &fakeOffice{out: convert.OfficeText{Text: "Номер счета: 128\nСумма: 15 000,50\n", Report: true}}
	p := &pipeline{office: office}
	doc := &UploadedDocument{Name: "Счет.xls", Data: []byte{0xD0, 0xCF, 0x11, 0xE0}}

	resp, err := p.build().Recognize(context.Background(), doc, RecognizeOptions{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if office.ext != "xls" || resp.Method != MethodOfficeReport {
		t.Errorf("ext=%q method=%q", office.ext, resp.Method)
	}
	if str(resp.InvoiceData.InvoiceNumber) != "128" || str(resp.InvoiceData.TotalAmountValue) != "15000.50" {
		t.Errorf("fields = %+v", resp.InvoiceData)
	}
}

func TestRecognizePlainText(t *testing.T) {
	doc := &UploadedDocument{Name: "invoice.txt", Data: []byte(invoiceText + "\xff")}
	resp, err := (&pipeline{}).build().Recognize(context.Background(), doc, RecognizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RawText != invoiceText || resp.Method != MethodPlainText {
		t.Errorf("rawText=%q method=%q", resp.RawText, resp.Method)
	}
}

func TestRecognizeSavesDraft(t *testing.T) {
	projectID := uuid.New()
	userID := uuid.New()
	drafts := &fakeDrafts{}
	p := &pipeline{recognizer: &fakeRecognizer{text: invoiceText}, drafts: drafts}

	resp, err := p.build().Recognize(context.Background(), imageDoc("invoice.png"), RecognizeOptions{ProjectID: &projectID, UserID: userID})
	if err != nil {
		t.Fatal(err)
	}
	if resp.InvoiceID == "" || len(drafts.saved) != 1 {
		t.Fatalf("invoiceId=%q saved=%d", resp.InvoiceID, len(drafts.saved))
	}
	d := drafts.saved[0]
	if d.ProjectID != projectID || d.UserID != userID || d.File.Name != "invoice.png" || str(d.Fields.InvoiceNumber) != "АБ-123" {
		t.Errorf("draft = %+v", d)
	}

	resp, err = (&pipeline{recognizer: &fakeRecognizer{text: invoiceText}}).build().Recognize(context.Background(), imageDoc("invoice.png"), RecognizeOptions{})
	if err != nil || resp.InvoiceID != "" {
		t.Errorf("draft saved without a project: %q, %v", resp.InvoiceID, err)
	}
}

func TestRecognizeDraftFailureKeepsResult(t *testing.T) {
	projectID := uuid.New()
	p := &pipeline{recognizer: &fakeRecognizer{text: invoiceText}, drafts: &fakeDrafts{err: errors.New("db down")}}
	resp, err := p.build().Recognize(context.Background(), imageDoc("invoice.png"), RecognizeOptions{ProjectID: &projectID})
	if err != nil || !resp.Success {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
	if resp.InvoiceID != "" || len(resp.Warnings) != 1 {
		t.Errorf("invoiceId=%q warnings=%v", resp.InvoiceID, resp.Warnings)
	}
}

type stubAssistant struct {
	called bool
}

func (s *stubAssistant) Complete(_ context.Context, _ string, f *extract.Fields) ([]string, error) {
	s.called = true
	due := "2024-03-15"
	f.DueDate = &due
	return []string{"dueDate"}, nil
}

func TestRecognizeWithAssistant(t *testing.T) {
	assistant := &stubAssistant{}
	p := &pipeline{recognizer: &fakeRecognizer{text: invoiceText}, assistant: assistant}
	resp, err := p.build().Recognize(context.Background(), imageDoc("invoice.png"), RecognizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !assistant.called || str(resp.InvoiceData.DueDate) != "2024-03-15" || len(resp.Assisted) != 1 {
		t.Errorf("assisted=%v dueDate=%s", resp.Assisted, str(resp.InvoiceData.DueDate))
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in        string
		limit     int
		want      string
		truncated bool
	}{
		{"короткий", 10, "короткий", false},
		{"ровно", 5, "ровно", false},
		{"длинный текст", 7, "длинный...", true},
		{"anything", 0, "anything", false},
	}
	for _, tt := range tests {
		got, truncated := TruncateText(tt.in, tt.limit)
		if got != tt.want || truncated != tt.truncated {
			t.Errorf("TruncateText(%q, %d) = %q, %v", tt.in, tt.limit, got, truncated)
		}
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		name, mime string
		data       []byte
		want       string
	}{
		{"IMG_001.JPG", "", []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), "jpg"},
		{"scan.pdf", "application/pdf", pngHeader, "png"},
		{"invoice.xlsx", "", []byte("not a workbook"), "xlsx"},
		{"blob", "application/pdf; charset=binary", []byte("%PDF-1.7\n"), "pdf"},
		{"blob", "", []byte("%PDF-1.4\n"), "pdf"},
		{"photo", "", pngHeader, "png"},
		{"notes", "text/plain", []byte("Счет № 1"), "txt"},
		{"archive.zip", "application/zip", []byte("PK\x03\x04"), ""},
	}
	for _, tt := range tests {
		if got := ResolveFormat(tt.name, tt.mime, tt.data); got != tt.want {
			t.Errorf("ResolveFormat(%q, %q) = %q, want %q", tt.name, tt.mime, got, tt.want)
		}
	}
}
