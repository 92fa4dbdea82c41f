package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// BudgetLedgerRepository implements port.BudgetLedgerRepository
type BudgetLedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetLedgerRepository creates a new budget ledger repository
func NewBudgetLedgerRepository(db *sql.DB, logger *zap.Logger) port.BudgetLedgerRepository {
	return &BudgetLedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts the entry; the expense_id primary key makes a second call a no-op
func (r *BudgetLedgerRepository) Record(ctx context.Context, entry *port.BudgetLedgerEntry) (bool, error) {
	query := `
		INSERT OR IGNORE INTO budget_ledger (expense_id, site_id, amount, counted_at)
		VALUES (?, ?, ?, ?)
	`

	amount, err := toMinor(entry.Amount)
	if err != nil {
		return false, err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entry.ExpenseID,
		entry.SiteID,
		amount,
		entry.CountedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record budget ledger entry", zap.Int64("expense_id", entry.ExpenseID), zap.Error(err))
		return false, fmt.Errorf("failed to record budget ledger entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// GetByExpenseID returns nil, nil when the expense was never counted
func (r *BudgetLedgerRepository) GetByExpenseID(ctx context.Context, expenseID int64) (*port.BudgetLedgerEntry, error) {
	query := `SELECT expense_id, site_id, amount, counted_at FROM budget_ledger WHERE expense_id = ?`

	var (
		entry  port.BudgetLedgerEntry
		amount int64
	)
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, expenseID).Scan(
		&entry.ExpenseID,
		&entry.SiteID,
		&amount,
		&entry.CountedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get budget ledger entry", zap.Int64("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get budget ledger entry: %w", err)
	}

	entry.Amount = fromMinor(amount)
	return &entry, nil
}
