package repository

import (
	"context"
	"errors"

	"stroycrm/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("record not found")

var invoiceColumns = []string{
	"id", "project_id", "user_id", "file_name", "file_size", "mime_type",
	"invoice_number", "issue_date", "due_date", "total_amount", "vat_amount", "vat_rate",
	"supplier_name", "supplier_inn", "supplier_kpp", "supplier_address",
	"fields", "raw_text", "status", "created_at", "updated_at",
}

type InvoiceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewInvoiceRepository(db *pgxpool.Pool, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	query := squirrel.Insert("invoices").
		Columns(invoiceColumns...).
		Values(
			inv.ID, inv.ProjectID, inv.UserID, inv.FileName, inv.FileSize, inv.MimeType,
			inv.InvoiceNumber, inv.IssueDate, inv.DueDate, inv.TotalAmount, inv.VATAmount, inv.VATRate,
			inv.SupplierName, inv.SupplierINN, inv.SupplierKPP, inv.SupplierAddress,
			inv.Fields, inv.RawText, inv.Status, inv.CreatedAt, inv.UpdatedAt,
		).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// GetByID returns the invoice only when userID owns it; anything else is
// ErrNotFound.
func (r *InvoiceRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Invoice, error) {
	query := squirrel.Select(invoiceColumns...).
		From("invoices").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	inv, err := scanInvoice(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepository) ListByProject(ctx context.Context, projectID, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	query := squirrel.Select(invoiceColumns...).
		From("invoices").
		Where(squirrel.Eq{"project_id": projectID, "user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// Update rewrites every editable column of inv. Ownership columns
// (project, user, file) are immutable and select the row.
func (r *InvoiceRepository) Update(ctx context.Context, inv *models.Invoice) error {
	query := squirrel.Update("invoices").
		Set("invoice_number", inv.InvoiceNumber).
		Set("issue_date", inv.IssueDate).
		Set("due_date", inv.DueDate).
		Set("total_amount", inv.TotalAmount).
		Set("vat_amount", inv.VATAmount).
		Set("vat_rate", inv.VATRate).
		Set("supplier_name", inv.SupplierName).
		Set("supplier_inn", inv.SupplierINN).
		Set("supplier_kpp", inv.SupplierKPP).
		Set("supplier_address", inv.SupplierAddress).
		Set("fields", inv.Fields).
		Set("status", inv.Status).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": inv.ID, "user_id": inv.UserID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InvoiceRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	query := squirrel.Delete("invoices").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(
		&inv.ID, &inv.ProjectID, &inv.UserID, &inv.FileName, &inv.FileSize, &inv.MimeType,
		&inv.InvoiceNumber, &inv.IssueDate, &inv.DueDate, &inv.TotalAmount, &inv.VATAmount, &inv.VATRate,
		&inv.SupplierName, &inv.SupplierINN, &inv.SupplierKPP, &inv.SupplierAddress,
		&inv.Fields, &inv.RawText, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
