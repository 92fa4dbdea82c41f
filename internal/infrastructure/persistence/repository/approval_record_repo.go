package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ApprovalRecordRepository implements port.ApprovalRecordRepository.
// Records are never updated or deleted.
type ApprovalRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRecordRepository creates a new approval record repository
func NewApprovalRecordRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRecordRepository {
	return &ApprovalRecordRepository{
		db:     db,
		logger: logger,
	}
}

// Append adds a decision to an expense's log
func (r *ApprovalRecordRepository) Append(ctx context.Context, rec *entity.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (
			expense_id, approver_id, level, action, comment, amount_at_decision, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	amount, err := toMinor(rec.AmountAtDecision)
	if err != nil {
		return err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		rec.ExpenseID,
		rec.ApproverID,
		int(rec.Level),
		rec.Action,
		rec.Comment,
		amount,
		rec.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append approval record",
			zap.Int64("expense_id", rec.ExpenseID),
			zap.String("approver_id", rec.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to append approval record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// ListByExpenseID returns the log in append order
func (r *ApprovalRecordRepository) ListByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	query := `
		SELECT id, expense_id, approver_id, level, action, comment, amount_at_decision, created_at
		FROM approval_records
		WHERE expense_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, expenseID)
	if err != nil {
		r.logger.Error("Failed to list approval records", zap.Int64("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalRecord
	for rows.Next() {
		var (
			rec    entity.ApprovalRecord
			amount int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ExpenseID,
			&rec.ApproverID,
			&rec.Level,
			&rec.Action,
			&rec.Comment,
			&amount,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		rec.AmountAtDecision = fromMinor(amount)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval records: %w", err)
	}
	return records, nil
}
