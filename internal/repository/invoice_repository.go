package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourorg/reviewflow/internal/domain"
)

// PostgresInvoiceRepository implements domain.InvoiceRepository using PostgreSQL
type PostgresInvoiceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInvoiceRepository creates a new invoice repository
func NewPostgresInvoiceRepository(db *sql.DB, logger *slog.Logger) *PostgresInvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInvoiceRepository{db: db, logger: logger}
}

const invoiceColumns = `id, tenant_id, number, amount, currency, status, due_date, created_at, updated_at`

// Create inserts an invoice. Amounts travel as decimal strings to avoid
// float rounding in the driver.
func (r *PostgresInvoiceRepository) Create(scope domain.Scope, inv *domain.Invoice) error {
	if !scope.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	query := `
		INSERT INTO invoices (id, tenant_id, number, amount, currency, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(query,
		inv.ID, inv.TenantID, inv.Number, inv.Amount.String(), inv.Currency,
		string(inv.Status), inv.DueDate,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice within the caller's tenant scope
func (r *PostgresInvoiceRepository) GetByID(scope domain.Scope, id string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	args := []any{id}
	if !scope.IsSuperAdmin() {
		if scope.TenantID == "" {
			return nil, domain.ErrTenantScopeRequired
		}
		query += ` AND tenant_id = $2`
		args = append(args, scope.TenantID)
	}
	return scanInvoice(r.db.QueryRow(query, args...))
}

// ListByTenant lists a tenant's invoices newest first
func (r *PostgresInvoiceRepository) ListByTenant(scope domain.Scope, tenantID string) ([]*domain.Invoice, error) {
	effective, err := guardTenant(scope, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 ORDER BY created_at DESC`, effective)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// UpdateStatus transitions an invoice lifecycle state
func (r *PostgresInvoiceRepository) UpdateStatus(scope domain.Scope, id string, status domain.InvoiceStatus) error {
	query := `UPDATE invoices SET status = $1, updated_at = now() WHERE id = $2`
	args := []any{string(status), id}
	if !scope.IsSuperAdmin() {
		if scope.TenantID == "" {
			return domain.ErrTenantScopeRequired
		}
		query += ` AND tenant_id = $3`
		args = append(args, scope.TenantID)
	}
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	var amount, status string
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.Number, &amount, &inv.Currency,
		&status, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse invoice amount %q: %w", amount, err)
	}
	inv.Amount = d
	inv.Status = domain.InvoiceStatus(status)
	return inv, nil
}
