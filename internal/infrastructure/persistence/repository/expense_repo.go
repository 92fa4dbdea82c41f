package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const maxListLimit = 100

const expenseColumns = `
	id, number, title, description, category, amount, original_amount, currency,
	payment_method, site_id, submitter_id, department, expense_date, submission_date,
	status, requires_director_signoff, director_escalation, priority, attachments,
	modification_reason, payment_reference, reimbursed_at, paid_at, archived_at,
	version, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense
func (r *ExpenseRepository) Create(ctx context.Context, e *entity.Expense) error {
	query := `
		INSERT INTO expenses (
			number, title, description, category, amount, original_amount, currency,
			payment_method, site_id, submitter_id, department, expense_date, submission_date,
			status, requires_director_signoff, director_escalation, priority, attachments,
			modification_reason, payment_reference, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	attachments, err := marshalAttachments(e.Attachments)
	if err != nil {
		return err
	}
	amount, err := toMinor(e.Amount)
	if err != nil {
		return err
	}
	originalAmount, err := toMinor(e.OriginalAmount)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Version == 0 {
		e.Version = 1
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		e.Number,
		e.Title,
		e.Description,
		e.Category,
		amount,
		originalAmount,
		e.Currency,
		e.PaymentMethod,
		e.SiteID,
		e.SubmitterID,
		e.Department,
		e.ExpenseDate.Format(dateLayout),
		e.SubmissionDate,
		e.Status,
		e.RequiresDirectorSignoff,
		e.DirectorEscalation,
		e.Priority,
		attachments,
		e.ModificationReason,
		e.PaymentReference,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.String("number", e.Number), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	e.ID = id
	return nil
}

// NextNumber atomically increments and returns the per-year counter
func (r *ExpenseRepository) NextNumber(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO expense_counters (year, last_seq) VALUES (?, 1)
		ON CONFLICT(year) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq
	`

	var seq int64
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, year).Scan(&seq); err != nil {
		r.logger.Error("Failed to allocate expense number", zap.Int("year", year), zap.Error(err))
		return 0, fmt.Errorf("failed to allocate expense number: %w", err)
	}
	return seq, nil
}

// GetByID retrieves an expense by ID, archived or not
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	e, err := scanExpense(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

// Update writes the mutable fields when the stored version still matches
func (r *ExpenseRepository) Update(ctx context.Context, e *entity.Expense) (bool, error) {
	query := `
		UPDATE expenses SET
			amount = ?, status = ?, submission_date = ?, requires_director_signoff = ?,
			modification_reason = ?, payment_reference = ?, reimbursed_at = ?, paid_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	amount, err := toMinor(e.Amount)
	if err != nil {
		return false, err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		amount,
		e.Status,
		e.SubmissionDate,
		e.RequiresDirectorSignoff,
		e.ModificationReason,
		e.PaymentReference,
		e.ReimbursedAt,
		e.PaidAt,
		updatedAt,
		e.ID,
		e.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.Int64("id", e.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update expense: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Info("Expense version conflict", zap.Int64("id", e.ID), zap.Int64("version", e.Version))
		return false, nil
	}

	e.Version++
	e.UpdatedAt = updatedAt
	return true, nil
}

// FindDuplicates searches live expenses of the same submitter, site and category
// whose original amount and date fall in the query ranges
func (r *ExpenseRepository) FindDuplicates(ctx context.Context, q port.DuplicateQuery) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + `
		FROM expenses
		WHERE submitter_id = ? AND site_id = ? AND category = ?
			AND original_amount BETWEEN ? AND ?
			AND expense_date BETWEEN ? AND ?
			AND id != ?
			AND status != ?
			AND archived_at IS NULL
		ORDER BY id
		LIMIT 10
	`

	minAmount, err := toMinor(q.MinAmount)
	if err != nil {
		return nil, err
	}
	maxAmount, err := toMinor(q.MaxAmount)
	if err != nil {
		return nil, err
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query,
		q.SubmitterID,
		q.SiteID,
		q.Category,
		minAmount,
		maxAmount,
		q.From.Format(dateLayout),
		q.To.Format(dateLayout),
		q.ExcludeID,
		workflow.StateRejected,
	)
	if err != nil {
		r.logger.Error("Failed to find duplicate expenses", zap.String("submitter_id", q.SubmitterID), zap.Error(err))
		return nil, fmt.Errorf("failed to find duplicates: %w", err)
	}
	defer rows.Close()

	return collectExpenses(rows)
}

// List returns live expenses matching the filter, newest first
func (r *ExpenseRepository) List(ctx context.Context, f entity.ExpenseFilter) ([]*entity.Expense, error) {
	var (
		where = []string{"archived_at IS NULL"}
		args  []interface{}
	)

	if f.SiteID != nil {
		where = append(where, "site_id = ?")
		args = append(args, *f.SiteID)
	}
	if f.SubmitterID != "" {
		where = append(where, "submitter_id = ?")
		args = append(args, f.SubmitterID)
	}
	if f.ExcludeSubmitterID != "" {
		where = append(where, "submitter_id != ?")
		args = append(args, f.ExcludeSubmitterID)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	return collectExpenses(rows)
}

// Archive soft-deletes an expense
func (r *ExpenseRepository) Archive(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE expenses
		SET archived_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND archived_at IS NULL
	`

	if _, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, at, at, id); err != nil {
		r.logger.Error("Failed to archive expense", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to archive expense: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func collectExpenses(rows *sql.Rows) ([]*entity.Expense, error) {
	var expenses []*entity.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}

func scanExpense(s rowScanner) (*entity.Expense, error) {
	var (
		e                                                entity.Expense
		amount, originalAmount                           int64
		expenseDate, attachments                         string
		submissionDate, reimbursedAt, paidAt, archivedAt sql.NullTime
	)

	err := s.Scan(
		&e.ID,
		&e.Number,
		&e.Title,
		&e.Description,
		&e.Category,
		&amount,
		&originalAmount,
		&e.Currency,
		&e.PaymentMethod,
		&e.SiteID,
		&e.SubmitterID,
		&e.Department,
		&expenseDate,
		&submissionDate,
		&e.Status,
		&e.RequiresDirectorSignoff,
		&e.DirectorEscalation,
		&e.Priority,
		&attachments,
		&e.ModificationReason,
		&e.PaymentReference,
		&reimbursedAt,
		&paidAt,
		&archivedAt,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Amount = fromMinor(amount)
	e.OriginalAmount = fromMinor(originalAmount)

	date, err := time.ParseInLocation(dateLayout, expenseDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid expense_date %q: %w", expenseDate, err)
	}
	e.ExpenseDate = date

	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
			return nil, fmt.Errorf("invalid attachments: %w", err)
		}
	}

	e.SubmissionDate = nullTimePtr(submissionDate)
	e.ReimbursedAt = nullTimePtr(reimbursedAt)
	e.PaidAt = nullTimePtr(paidAt)
	e.ArchivedAt = nullTimePtr(archivedAt)

	return &e, nil
}

func marshalAttachments(refs []string) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachments: %w", err)
	}
	return string(b), nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
