package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"stroycrm/internal/dto"
	"stroycrm/internal/extract"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FieldAssistant fills fields the rules left empty. It must never
// overwrite a field that is already set.
type FieldAssistant interface {
	Complete(ctx context.Context, text string, fields *extract.Fields) ([]string, error)
}

// DraftStore persists recognized invoices.
type DraftStore interface {
	CreateDraft(ctx context.Context, draft *Draft) (uuid.UUID, error)
}

// RecognizeOptions are the per-request knobs of Recognize.
type RecognizeOptions struct {
	DPI int
	// ProjectID, when set, saves the result as a draft of that project.
	ProjectID *uuid.UUID
	UserID    uuid.UUID
}

// RecognitionService runs the whole pipeline for one upload and
// assembles the client response.
type RecognitionService struct {
	acquisition  *AcquisitionService
	extractor    *extract.Extractor
	assistant    FieldAssistant
	drafts       DraftStore
	rawTextLimit int
	logger       *zap.Logger
}

// NewRecognitionService wires the pipeline. assistant and drafts may be
// nil.
func NewRecognitionService(
	acquisition *AcquisitionService,
	extractor *extract.Extractor,
	assistant FieldAssistant,
	drafts DraftStore,
	rawTextLimit int,
	logger *zap.Logger,
) *RecognitionService {
	return &RecognitionService{
		acquisition:  acquisition,
		extractor:    extractor,
		assistant:    assistant,
		drafts:       drafts,
		rawTextLimit: rawTextLimit,
		logger:       logger,
	}
}

func (s *RecognitionService) OCRReady() bool {
	return s.acquisition.OCRReady()
}

func (s *RecognitionService) Formats() dto.FormatsResponse {
	return dto.FormatsResponse{
		Formats:   AcceptedFormats,
		MaxFileMB: s.acquisition.MaxFileMB(),
	}
}

// Recognize always returns a response fit for the client. The error is
// non-nil exactly when the response reports a failure other than "no
// text"; it is a *RecognitionError whose Kind selects the status code.
func (s *RecognitionService) Recognize(ctx context.Context, doc *UploadedDocument, opts RecognizeOptions) (resp *dto.RecognitionResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recognition panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = processingError(fmt.Errorf("panic: %v", r))
			resp = FailureResponse(err, fileInfo(doc))
		}
	}()

	file := fileInfo(doc)
	acq, err := s.acquisition.Acquire(ctx, doc, opts.DPI)
	if err != nil {
		return FailureResponse(err, file), err
	}
	file.Format = acq.Format

	if strings.TrimSpace(acq.Text) == "" && len(acq.Fragments) == 0 {
		s.logger.Info("No text detected", zap.String("file", file.Name), zap.String("method", acq.Method))
		return &dto.RecognitionResponse{
			Success:     false,
			Outcome:     OutcomeNoText,
			File:        file,
			Pages:       acq.Pages,
			TotalPages:  acq.TotalPages,
			OCRMode:     acq.OCRMode,
			Method:      acq.Method,
			Error:       msgNoTextDetected,
			Suggestions: noTextSuggestions,
			Warnings:    pageWarnings(acq),
		}, nil
	}

	fields := s.extract(acq)

	rawText, truncated := TruncateText(acq.Text, s.rawTextLimit)
	resp = &dto.RecognitionResponse{
		Success:       true,
		Outcome:       OutcomeExtracted,
		RawText:       rawText,
		RawTextLength: utf8.RuneCountInString(acq.Text),
		Truncated:     truncated,
		InvoiceData:   &fields,
		ExtractedData: &fields,
		File:          file,
		Pages:         acq.Pages,
		TotalPages:    acq.TotalPages,
		OCRMode:       acq.OCRMode,
		Method:        acq.Method,
		Warnings:      pageWarnings(acq),
	}

	if s.assistant != nil && len(fields.Missing()) > 0 {
		filled, err := s.assistant.Complete(ctx, rawText, &fields)
		if err != nil {
			s.logger.Warn("Field assist failed", zap.Error(err))
		}
		resp.Assisted = filled
	}

	if opts.ProjectID != nil {
		id, err := s.saveDraft(ctx, opts, file, &fields, rawText)
		if err != nil {
			s.logger.Error("Failed to save invoice draft",
				zap.String("project_id", opts.ProjectID.String()),
				zap.Error(err),
			)
			resp.Warnings = append(resp.Warnings, msgDraftNotSaved)
		} else {
			resp.InvoiceID = id.String()
		}
	}

	s.logger.Info("Invoice recognized",
		zap.String("file", file.Name),
		zap.String("method", acq.Method),
		zap.Int("raw_text_length", resp.RawTextLength),
		zap.Strings("missing", fields.Missing()),
		zap.Int("items", len(fields.Items)),
	)
	return resp, nil
}

// pageWarnings tells the client when a PDF was cut at the page limit.
func pageWarnings(acq *Acquisition) []string {
	if acq.TotalPages <= acq.Pages {
		return nil
	}
	return []string{fmt.Sprintf(msgPagesTruncated, acq.Pages, acq.TotalPages)}
}

func (s *RecognitionService) extract(acq *Acquisition) extract.Fields {
	if acq.Report {
		return extract.ParseLegacyReport(acq.Text)
	}
	if strings.TrimSpace(acq.Text) == "" {
		fragments := make([]extract.Fragment, len(acq.Fragments))
		for i, f := range acq.Fragments {
			fragments[i] = extract.Fragment{Text: f.Text}
		}
		return s.extractor.ExtractWithFragments(acq.Text, fragments)
	}
	return s.extractor.Extract(acq.Text)
}

func (s *RecognitionService) saveDraft(ctx context.Context, opts RecognizeOptions, file *dto.FileInfo, fields *extract.Fields, rawText string) (uuid.UUID, error) {
	if s.drafts == nil {
		return uuid.Nil, errors.New("no draft store configured")
	}
	return s.drafts.CreateDraft(ctx, &Draft{
		ProjectID: *opts.ProjectID,
		UserID:    opts.UserID,
		File:      *file,
		Fields:    *fields,
		RawText:   rawText,
	})
}

// FailureResponse builds the sanitized client payload for err. Anything
// that is not a *RecognitionError is reported as a processing failure.
func FailureResponse(err error, file *dto.FileInfo) *dto.RecognitionResponse {
	var rerr *RecognitionError
	if !errors.As(err, &rerr) {
		rerr = processingError(err)
	}
	return &dto.RecognitionResponse{
		Success:     false,
		File:        file,
		Error:       rerr.Message,
		Suggestions: rerr.Suggestions,
	}
}

// TooLargeResponse is the validation payload for an upload the transport
// rejected at its body limit, before Recognize could see it.
func TooLargeResponse(maxFileMB int) *dto.RecognitionResponse {
	return FailureResponse(validationError(msgFileTooLarge, maxFileMB, ErrFileTooLarge), nil)
}

func fileInfo(doc *UploadedDocument) *dto.FileInfo {
	if doc == nil {
		return nil
	}
	return &dto.FileInfo{
		Name: doc.Name,
		Size: int64(len(doc.Data)),
		Type: doc.MIMEType,
	}
}
