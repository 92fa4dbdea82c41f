package policy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockExpenseRepo struct {
	findDuplicatesFunc func(ctx context.Context, q port.DuplicateQuery) ([]*entity.Expense, error)
	lastQuery          port.DuplicateQuery
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *entity.Expense) error { return nil }
func (m *mockExpenseRepo) NextNumber(ctx context.Context, year int) (int64, error) {
	return 1, nil
}
func (m *mockExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	return nil, nil
}
func (m *mockExpenseRepo) Update(ctx context.Context, expense *entity.Expense) (bool, error) {
	return true, nil
}
func (m *mockExpenseRepo) FindDuplicates(ctx context.Context, q port.DuplicateQuery) ([]*entity.Expense, error) {
	m.lastQuery = q
	if m.findDuplicatesFunc != nil {
		return m.findDuplicatesFunc(ctx, q)
	}
	return nil, nil
}
func (m *mockExpenseRepo) List(ctx context.Context, filter entity.ExpenseFilter) ([]*entity.Expense, error) {
	return nil, nil
}
func (m *mockExpenseRepo) Archive(ctx context.Context, id int64, at time.Time) error { return nil }

type mockSiteRepo struct {
	sites         map[int64]*entity.Site
	updatedPolicy *entity.Policy
}

func (m *mockSiteRepo) GetByID(ctx context.Context, id int64) (*entity.Site, error) {
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}
func (m *mockSiteRepo) Create(ctx context.Context, site *entity.Site) error { return nil }
func (m *mockSiteRepo) UpdatePolicy(ctx context.Context, id int64, policy *entity.Policy) error {
	m.updatedPolicy = policy
	doc, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	if site, ok := m.sites[id]; ok {
		site.RawPolicy = doc
	}
	return nil
}
func (m *mockSiteRepo) IncrementSpend(ctx context.Context, id int64, amount decimal.Decimal, at time.Time) error {
	return nil
}
