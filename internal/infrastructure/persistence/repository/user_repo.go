package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const userColumns = `id, name, email, role, site_id, lark_open_id, is_active`

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID returns the user regardless of is_active; callers decide what inactive means
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	var u entity.User
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.SiteID, &u.LarkOpenID, &u.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Create inserts a user, replacing the profile fields of an existing id
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	query := `
		INSERT INTO users (id, name, email, role, site_id, lark_open_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			site_id = excluded.site_id,
			lark_open_id = excluded.lark_open_id,
			is_active = excluded.is_active
	`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.Role, u.SiteID, u.LarkOpenID, u.IsActive, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("id", u.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ListByRole returns active users holding role, optionally restricted to one site
func (r *UserRepository) ListByRole(ctx context.Context, role workflow.Role, siteID *int64) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? AND is_active = 1`
	args := []interface{}{role}
	if siteID != nil {
		query += ` AND site_id = ?`
		args = append(args, *siteID)
	}
	query += ` ORDER BY id`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users by role", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.SiteID, &u.LarkOpenID, &u.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
