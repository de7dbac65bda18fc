package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stroycrm/internal/dto"
	"stroycrm/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeRecognizer struct {
	resp *dto.RecognitionResponse
	err  error

	doc  *service.UploadedDocument
	opts service.RecognizeOptions
}

func (f *fakeRecognizer) Recognize(_ context.Context, doc *service.UploadedDocument, opts service.RecognizeOptions) (*dto.RecognitionResponse, error) {
	f.doc, f.opts = doc, opts
	if f.err != nil {
		return service.FailureResponse(f.err, nil), f.err
	}
	return f.resp, nil
}

func (f *fakeRecognizer) Formats() dto.FormatsResponse {
	return dto.FormatsResponse{Formats: service.AcceptedFormats, MaxFileMB: 10}
}

func (f *fakeRecognizer) OCRReady() bool { return true }

type fakeInvoices struct {
	inv *dto.InvoiceResponse
	err error

	userID uuid.UUID
}

func (f *fakeInvoices) Get(_ context.Context, userID, _ uuid.UUID) (*dto.InvoiceResponse, error) {
	f.userID = userID
	return f.inv, f.err
}

func (f *fakeInvoices) ListByProject(_ context.Context, userID, _ uuid.UUID, limit, offset int) (*dto.InvoiceListResponse, error) {
	f.userID = userID
	return &dto.InvoiceListResponse{Invoices: []dto.InvoiceResponse{}, Limit: limit, Offset: offset}, f.err
}

func (f *fakeInvoices) Update(_ context.Context, userID, _ uuid.UUID, _ *dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error) {
	f.userID = userID
	return f.inv, f.err
}

func (f *fakeInvoices) Delete(_ context.Context, userID, _ uuid.UUID) error {
	f.userID = userID
	return f.err
}

var testUserID = uuid.New()

func newTestApp(rec Recognizer, inv InvoiceManager) *fiber.App {
	h := NewInvoiceHandler(rec, inv, zap.NewNop())
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", testUserID.String())
		return c.Next()
	})
	app.Post("/invoices/recognize", h.Recognize)
	app.Get("/recognition/formats", h.Formats)
	app.Get("/invoices/:id", h.GetInvoice)
	app.Put("/invoices/:id", h.UpdateInvoice)
	app.Delete("/invoices/:id", h.DeleteInvoice)
	app.Get("/projects/:projectId/invoices", h.ListProjectInvoices)
	return app
}

func uploadRequest(t *testing.T, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(part, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/invoices/recognize", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestRecognizeHandler(t *testing.T) {
	projectID := uuid.New()
	rec := &fakeRecognizer{resp: &dto.RecognitionResponse{Success: true, Outcome: service.OutcomeExtracted, RawText: "Счет № 1"}}
	app := newTestApp(rec, &fakeInvoices{})

	req := uploadRequest(t, map[string]string{"dpi": "300", "projectId": projectID.String()}, "invoice.txt", "Счет № 1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got dto.RecognitionResponse
	decode(t, resp, &got)
	if !got.Success || got.RawText != "Счет № 1" {
		t.Errorf("body = %+v", got)
	}
	if rec.doc == nil || rec.doc.Name != "invoice.txt" || string(rec.doc.Data) != "Счет № 1" {
		t.Errorf("doc = %+v", rec.doc)
	}
	if rec.opts.DPI != 300 || rec.opts.ProjectID == nil || *rec.opts.ProjectID != projectID || rec.opts.UserID != testUserID {
		t.Errorf("opts = %+v", rec.opts)
	}
}

func TestRecognizeHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &service.RecognitionError{Kind: service.KindValidation, Message: "bad"}, fiber.StatusBadRequest},
		{"too large", &service.RecognitionError{Kind: service.KindValidation, Message: "big", Err: fmt.Errorf("%w: 11 MB", service.ErrFileTooLarge)}, fiber.StatusRequestEntityTooLarge},
		{"configuration", &service.RecognitionError{Kind: service.KindConfiguration, Message: "off"}, fiber.StatusServiceUnavailable},
		{"processing", &service.RecognitionError{Kind: service.KindProcessing, Message: "failed", Suggestions: []string{"a", "b"}}, fiber.StatusUnprocessableEntity},
		{"unexpected", errors.New("secret detail"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeRecognizer{err: tt.err}, &fakeInvoices{})
			resp, err := app.Test(uploadRequest(t, nil, "a.png", "x"))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), `"success":false`) {
				t.Errorf("body = %s", body)
			}
			if strings.Contains(string(body), "secret detail") {
				t.Errorf("internal error leaked: %s", body)
			}
		})
	}
}

func TestRecognizeHandlerMissingFile(t *testing.T) {
	rec := &fakeRecognizer{err: &service.RecognitionError{Kind: service.KindValidation, Message: "Файл не передан"}}
	app := newTestApp(rec, &fakeInvoices{})

	resp, err := app.Test(uploadRequest(t, map[string]string{"note": "x"}, "", ""))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest || rec.doc != nil {
		t.Errorf("status=%d doc=%+v", resp.StatusCode, rec.doc)
	}
}

func TestRecognizeHandlerBadParams(t *testing.T) {
	for _, fields := range []map[string]string{{"dpi": "high"}, {"projectId": "not-a-uuid"}} {
		app := newTestApp(&fakeRecognizer{}, &fakeInvoices{})
		resp, err := app.Test(uploadRequest(t, fields, "a.png", "x"))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%v: status = %d", fields, resp.StatusCode)
		}
	}
}

func TestFormatsHandler(t *testing.T) {
	app := newTestApp(&fakeRecognizer{}, &fakeInvoices{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/recognition/formats", nil))
	if err != nil {
		t.Fatal(err)
	}
	var got dto.FormatsResponse
	decode(t, resp, &got)
	if len(got.Formats) != len(service.AcceptedFormats) || got.MaxFileMB != 10 {
		t.Errorf("formats = %+v", got)
	}
}

func TestInvoiceEndpoints(t *testing.T) {
	id := uuid.New()
	found := &fakeInvoices{inv: &dto.InvoiceResponse{ID: id.String(), Status: "draft"}}
	missing := &fakeInvoices{err: service.ErrInvoiceNotFound}
	invalid := &fakeInvoices{err: service.ErrInvalidStatus}

	tests := []struct {
		name   string
		store  *fakeInvoices
		method string
		path   string
		body   string
		want   int
	}{
		{"get", found, http.MethodGet, "/invoices/" + id.String(), "", fiber.StatusOK},
		{"get missing", missing, http.MethodGet, "/invoices/" + id.String(), "", fiber.StatusNotFound},
		{"get bad id", found, http.MethodGet, "/invoices/42", "", fiber.StatusBadRequest},
		{"list", found, http.MethodGet, "/projects/" + uuid.NewString() + "/invoices?limit=5", "", fiber.StatusOK},
		{"update", found, http.MethodPut, "/invoices/" + id.String(), `{"status":"confirmed"}`, fiber.StatusOK},
		{"update bad status", invalid, http.MethodPut, "/invoices/" + id.String(), `{"status":"paid"}`, fiber.StatusBadRequest},
		{"delete", found, http.MethodDelete, "/invoices/" + id.String(), "", fiber.StatusNoContent},
		{"delete missing", missing, http.MethodDelete, "/invoices/" + id.String(), "", fiber.StatusNotFound},
		{"store down", &fakeInvoices{err: errors.New("conn reset")}, http.MethodGet, "/invoices/" + id.String(), "", fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeRecognizer{}, tt.store)
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want != fiber.StatusBadRequest || tt.store == invalid {
				if tt.store.userID != testUserID {
					t.Errorf("store called for user %s, want %s", tt.store.userID, testUserID)
				}
			}
		})
	}
}

func TestInvoiceEndpointsRequireUser(t *testing.T) {
	h := NewInvoiceHandler(&fakeRecognizer{}, &fakeInvoices{}, zap.NewNop())
	app := fiber.New()
	app.Get("/invoices/:id", h.GetInvoice)
	app.Put("/invoices/:id", h.UpdateInvoice)
	app.Delete("/invoices/:id", h.DeleteInvoice)
	app.Get("/projects/:projectId/invoices", h.ListProjectInvoices)

	id := uuid.NewString()
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/invoices/" + id},
		{http.MethodPut, "/invoices/" + id},
		{http.MethodDelete, "/invoices/" + id},
		{http.MethodGet, "/projects/" + id + "/invoices"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}
