package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SiteRepository implements port.SiteRepository
type SiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db *sql.DB, logger *zap.Logger) port.SiteRepository {
	return &SiteRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID returns the site with its raw policy document; the effective policy is left to the caller
func (r *SiteRepository) GetByID(ctx context.Context, id int64) (*entity.Site, error) {
	query := `
		SELECT id, code, name, location, monthly_budget, yearly_budget,
			monthly_spend, yearly_spend, stats_month, stats_year,
			policy, is_active, created_at, updated_at
		FROM sites
		WHERE id = ?
	`

	var (
		s                           entity.Site
		monthlyBudget, yearlyBudget int64
		monthlySpend, yearlySpend   int64
		policy                      string
	)

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Location,
		&monthlyBudget,
		&yearlyBudget,
		&monthlySpend,
		&yearlySpend,
		&s.Statistics.Month,
		&s.Statistics.Year,
		&policy,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get site", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get site: %w", err)
	}

	s.Budget = entity.Budget{Monthly: fromMinor(monthlyBudget), Yearly: fromMinor(yearlyBudget)}
	s.Statistics.MonthlySpend = fromMinor(monthlySpend)
	s.Statistics.YearlySpend = fromMinor(yearlySpend)
	if policy != "" {
		s.RawPolicy = []byte(policy)
	}

	return &s, nil
}

// Create inserts a site. A zero ID lets the database assign one.
func (r *SiteRepository) Create(ctx context.Context, s *entity.Site) error {
	query := `
		INSERT INTO sites (
			id, code, name, location, monthly_budget, yearly_budget, policy, is_active, created_at, updated_at
		) VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	monthly, err := toMinor(s.Budget.Monthly)
	if err != nil {
		return err
	}
	yearly, err := toMinor(s.Budget.Yearly)
	if err != nil {
		return err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		s.ID,
		s.Code,
		s.Name,
		s.Location,
		monthly,
		yearly,
		string(s.RawPolicy),
		s.IsActive,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create site", zap.String("code", s.Code), zap.Error(err))
		return fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	s.ID = id
	return nil
}

// UpdatePolicy replaces the stored policy document
func (r *SiteRepository) UpdatePolicy(ctx context.Context, id int64, p *entity.Policy) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	query := `UPDATE sites SET policy = ?, updated_at = ? WHERE id = ?`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, string(doc), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update site policy", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update site policy: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("site %d not found", id)
	}
	return nil
}

// IncrementSpend adds amount in one statement. SQLite evaluates every SET
// expression against the old row, so the period columns can be compared and
// overwritten together.
func (r *SiteRepository) IncrementSpend(ctx context.Context, id int64, amount decimal.Decimal, at time.Time) error {
	query := `
		UPDATE sites SET
			monthly_spend = CASE WHEN stats_month = ? THEN monthly_spend + ? ELSE ? END,
			yearly_spend = CASE WHEN stats_year = ? THEN yearly_spend + ? ELSE ? END,
			stats_month = ?,
			stats_year = ?,
			updated_at = ?
		WHERE id = ?
	`

	month := at.Format("2006-01")
	year := at.Year()
	minor, err := toMinor(amount)
	if err != nil {
		return err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		month, minor, minor,
		year, minor, minor,
		month,
		year,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		r.logger.Error("Failed to increment site spend", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to increment site spend: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("site %d not found", id)
	}
	return nil
}
