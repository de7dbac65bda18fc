package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"stroycrm/internal/dto"
	"stroycrm/internal/extract"
	"stroycrm/internal/models"
	"stroycrm/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidStatus = errors.New("invalid invoice status")

// InvoiceRepository is the storage InvoiceService needs;
// *repository.InvoiceRepository implements it. Reads and writes are
// scoped to the owning user; a foreign invoice is repository.ErrNotFound.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error)
	ListByProject(ctx context.Context, projectID, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	Update(ctx context.Context, inv *models.Invoice) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// Draft is a recognition result about to be saved.
type Draft struct {
	ProjectID uuid.UUID
	UserID    uuid.UUID
	File      dto.FileInfo
	Fields    extract.Fields
	RawText   string
}

type InvoiceService struct {
	repo   InvoiceRepository
	logger *zap.Logger
}

func NewInvoiceService(repo InvoiceRepository, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		repo:   repo,
		logger: logger,
	}
}

func (s *InvoiceService) CreateDraft(ctx context.Context, draft *Draft) (uuid.UUID, error) {
	now := time.Now()
	inv := &models.Invoice{
		ID:        uuid.New(),
		ProjectID: draft.ProjectID,
		UserID:    draft.UserID,
		FileName:  sanitizeUTF8(draft.File.Name),
		FileSize:  draft.File.Size,
		MimeType:  draft.File.Type,
		RawText:   sanitizeUTF8(draft.RawText),
		Status:    models.InvoiceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyFields(inv, &draft.Fields); err != nil {
		return uuid.Nil, err
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return uuid.Nil, fmt.Errorf("create invoice: %w", err)
	}

	s.logger.Info("Invoice draft saved",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("project_id", inv.ProjectID.String()),
	)
	return inv.ID, nil
}

func (s *InvoiceService) Get(ctx context.Context, userID, id uuid.UUID) (*dto.InvoiceResponse, error) {
	inv, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return toInvoiceResponse(inv, true), nil
}

// ListByProject lists the caller's invoices in a project, newest first.
func (s *InvoiceService) ListByProject(ctx context.Context, userID, projectID uuid.UUID, limit, offset int) (*dto.InvoiceListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	invoices, err := s.repo.ListByProject(ctx, projectID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	out := &dto.InvoiceListResponse{
		Invoices: make([]dto.InvoiceResponse, 0, len(invoices)),
		Limit:    limit,
		Offset:   offset,
	}
	for _, inv := range invoices {
		out.Invoices = append(out.Invoices, *toInvoiceResponse(inv, false))
	}
	return out, nil
}

// Update applies a user correction. A confirmed invoice can still be
// edited; only the status values themselves are checked.
func (s *InvoiceService) Update(ctx context.Context, userID, id uuid.UUID, req *dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error) {
	inv, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, notFound(err)
	}

	if req.Status != nil {
		switch status := models.InvoiceStatus(*req.Status); status {
		case models.InvoiceStatusDraft, models.InvoiceStatusConfirmed:
			inv.Status = status
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
		}
	}
	if req.Fields != nil {
		fields := *req.Fields
		if fields.Items == nil {
			fields.Items = []extract.LineItem{}
		}
		// The raw amounts are what the user edits; recompute the canonical
		// values from them.
		fields.TotalAmountValue = canonicalAmount(fields.TotalAmount)
		fields.VATAmountValue = canonicalAmount(fields.VATAmount)
		if err := applyFields(inv, &fields); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, notFound(err)
	}
	inv.UpdatedAt = time.Now()

	s.logger.Info("Invoice updated",
		zap.String("invoice_id", id.String()),
		zap.String("status", string(inv.Status)),
	)
	return toInvoiceResponse(inv, true), nil
}

func (s *InvoiceService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return notFound(err)
	}
	s.logger.Info("Invoice deleted", zap.String("invoice_id", id.String()))
	return nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvoiceNotFound
	}
	return err
}

// applyFields stores fields on inv, both as the jsonb record and in the
// flat columns.
func applyFields(inv *models.Invoice, fields *extract.Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode invoice fields: %w", err)
	}
	inv.Fields = data

	inv.InvoiceNumber = fields.InvoiceNumber
	inv.IssueDate = parseISODate(fields.IssueDate)
	inv.DueDate = parseISODate(fields.DueDate)
	inv.TotalAmount = parseAmount(fields.TotalAmountValue, fields.TotalAmount)
	inv.VATAmount = parseAmount(fields.VATAmountValue, fields.VATAmount)
	inv.VATRate = fields.VATRate
	inv.SupplierName = fields.Supplier.Name
	inv.SupplierINN = fields.Supplier.INN
	inv.SupplierKPP = fields.Supplier.KPP
	inv.SupplierAddress = fields.Supplier.Address
	return nil
}

func parseISODate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}

// parseAmount prefers the canonical value and falls back to normalizing
// the raw token, which is all a hand-edited record may carry.
func parseAmount(canonical, raw *string) *float64 {
	var s string
	switch {
	case canonical != nil:
		s = *canonical
	case raw != nil:
		v, ok := extract.NormalizeAmount(*raw)
		if !ok {
			return nil
		}
		s = v
	default:
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func toInvoiceResponse(inv *models.Invoice, withDetails bool) *dto.InvoiceResponse {
	resp := &dto.InvoiceResponse{
		ID:            inv.ID.String(),
		ProjectID:     inv.ProjectID.String(),
		UserID:        inv.UserID.String(),
		FileName:      inv.FileName,
		FileSize:      inv.FileSize,
		MimeType:      inv.MimeType,
		Status:        string(inv.Status),
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     formatDate(inv.IssueDate),
		DueDate:       formatDate(inv.DueDate),
		TotalAmount:   inv.TotalAmount,
		VATAmount:     inv.VATAmount,
		SupplierName:  inv.SupplierName,
		SupplierINN:   inv.SupplierINN,
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.Format(time.RFC3339),
	}
	if withDetails {
		var fields extract.Fields
		if len(inv.Fields) > 0 && json.Unmarshal(inv.Fields, &fields) == nil {
			resp.Fields = &fields
		}
		resp.RawText = inv.RawText
	}
	return resp
}

func canonicalAmount(raw *string) *string {
	if raw == nil {
		return nil
	}
	v, ok := extract.NormalizeAmount(*raw)
	if !ok {
		return nil
	}
	return &v
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
