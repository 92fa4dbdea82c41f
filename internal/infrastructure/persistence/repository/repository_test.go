package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.OpenMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS))
	return db
}

func seedSite(t *testing.T, db *database.DB) *entity.Site {
	t.Helper()
	site := &entity.Site{
		Code:      "BLR",
		Name:      "Bangalore",
		Location:  "Bangalore",
		Budget:    entity.Budget{Monthly: decimal.NewFromInt(100000), Yearly: decimal.NewFromInt(1000000)},
		IsActive:  true,
		RawPolicy: []byte(`{"cashMax":"1500"}`),
	}
	require.NoError(t, NewSiteRepository(db.DB, zap.NewNop()).Create(context.Background(), site))
	return site
}

func newExpense(siteID int64, number string, amount string, date time.Time) *entity.Expense {
	return &entity.Expense{
		Number:         number,
		Title:          "Team lunch",
		Category:       entity.CategoryFood,
		Amount:         decimal.RequireFromString(amount),
		OriginalAmount: decimal.RequireFromString(amount),
		Currency:       "INR",
		PaymentMethod:  entity.PaymentMethodCard,
		SiteID:         siteID,
		SubmitterID:    "u-sub",
		ExpenseDate:    date,
		Status:         workflow.StateSubmitted,
		Priority:       "normal",
		Attachments:    []string{"receipts/1.pdf"},
	}
}

func TestExpenseRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	repo := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	e := newExpense(site.ID, "EXP-2024-000001", "1234.56", date)
	require.NoError(t, repo.Create(ctx, e))
	assert.NotZero(t, e.ID)
	assert.Equal(t, int64(1), e.Version)

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, date, got.ExpenseDate)
	assert.Equal(t, []string{"receipts/1.pdf"}, got.Attachments)
	assert.Equal(t, workflow.StateSubmitted, got.Status)
	assert.Nil(t, got.ArchivedAt)

	missing, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestToMinor(t *testing.T) {
	m, err := toMinor(decimal.RequireFromString("1234.56"))
	require.NoError(t, err)
	assert.Equal(t, int64(123456), m)

	_, err = toMinor(decimal.RequireFromString("1000000000000000000"))
	assert.Error(t, err, "values past the int64 range are refused, not wrapped")
}

func TestExpenseRepository_CreateRefusesOversizedAmount(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	repo := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	e := newExpense(site.ID, "EXP-2024-000001", "1000000000000000000", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.Error(t, repo.Create(ctx, e))

	list, err := repo.List(ctx, entity.ExpenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExpenseRepository_NextNumber(t *testing.T) {
	db := setupDB(t)
	repo := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextNumber(ctx, 2024)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := repo.NextNumber(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "each year has its own sequence")
}

func TestExpenseRepository_UpdateChecksVersion(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	repo := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	e := newExpense(site.ID, "EXP-2024-000001", "500", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, e))

	stale := *e

	e.Status = workflow.StateUnderReview
	ok, err := repo.Update(ctx, e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), e.Version)

	stale.Status = workflow.StateRejected
	ok, err = repo.Update(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, ok, "write against an old version must not apply")

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateUnderReview, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestExpenseRepository_FindDuplicates(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	repo := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	match := newExpense(site.ID, "EXP-2024-000001", "800", day(4))
	require.NoError(t, repo.Create(ctx, match))

	outside := newExpense(site.ID, "EXP-2024-000002", "800", day(20))
	require.NoError(t, repo.Create(ctx, outside))

	rejected := newExpense(site.ID, "EXP-2024-000003", "800", day(5))
	rejected.Status = workflow.StateRejected
	require.NoError(t, repo.Create(ctx, rejected))

	archived := newExpense(site.ID, "EXP-2024-000004", "800", day(5))
	require.NoError(t, repo.Create(ctx, archived))
	require.NoError(t, repo.Archive(ctx, archived.ID, day(6)))

	found, err := repo.FindDuplicates(ctx, port.DuplicateQuery{
		SubmitterID: "u-sub",
		SiteID:      site.ID,
		Category:    entity.CategoryFood,
		MinAmount:   decimal.NewFromInt(800),
		MaxAmount:   decimal.NewFromInt(800),
		From:        day(2),
		To:          day(8),
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, match.ID, found[0].ID)

	found, err = repo.FindDuplicates(ctx, port.DuplicateQuery{
		SubmitterID: "u-sub",
		SiteID:      site.ID,
		Category:    entity.CategoryFood,
		MinAmount:   decimal.NewFromInt(800),
		MaxAmount:   decimal.NewFromInt(800),
		From:        day(2),
		To:          day(8),
		ExcludeID:   match.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestExpenseRepository_ListFilters(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	repo := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	a := newExpense(site.ID, "EXP-2024-000001", "100", date)
	b := newExpense(site.ID, "EXP-2024-000002", "200", date)
	b.Status = workflow.StateApproved
	c := newExpense(site.ID, "EXP-2024-000003", "300", date)
	c.SubmitterID = "u-other"
	for _, e := range []*entity.Expense{a, b, c} {
		require.NoError(t, repo.Create(ctx, e))
	}

	all, err := repo.List(ctx, entity.ExpenseFilter{SiteID: &site.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID, "newest first")

	mine, err := repo.List(ctx, entity.ExpenseFilter{SubmitterID: "u-sub"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	others, err := repo.List(ctx, entity.ExpenseFilter{ExcludeSubmitterID: "u-sub", Limit: 1})
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, c.ID, others[0].ID)

	others, err = repo.List(ctx, entity.ExpenseFilter{ExcludeSubmitterID: "u-other", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, others, 1, "paging applies after the exclusion")
	assert.Equal(t, a.ID, others[0].ID)

	approved, err := repo.List(ctx, entity.ExpenseFilter{Statuses: []workflow.State{workflow.StateApproved}})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, b.ID, approved[0].ID)

	page, err := repo.List(ctx, entity.ExpenseFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)

	require.NoError(t, repo.Archive(ctx, a.ID, time.Now()))
	mine, err = repo.List(ctx, entity.ExpenseFilter{SubmitterID: "u-sub"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestApprovalRecordRepository_AppendOnly(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	ctx := context.Background()

	e := newExpense(site.ID, "EXP-2024-000001", "900", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, NewExpenseRepository(db.DB, zap.NewNop()).Create(ctx, e))

	repo := NewApprovalRecordRepository(db.DB, zap.NewNop())
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	first := &entity.ApprovalRecord{ExpenseID: e.ID, ApproverID: "u-l1", Level: workflow.LevelL1, Action: workflow.ActionApprove, Comment: "ok", AmountAtDecision: decimal.NewFromInt(900), Timestamp: at}
	second := &entity.ApprovalRecord{ExpenseID: e.ID, ApproverID: "u-l2", Level: workflow.LevelL2, Action: workflow.ActionModify, Comment: "rounding", AmountAtDecision: decimal.RequireFromString("850.50"), Timestamp: at.Add(time.Hour)}
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	got, err := repo.ListByExpenseID(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, workflow.LevelL1, got[0].Level)
	assert.Equal(t, workflow.ActionModify, got[1].Action)
	assert.True(t, got[1].AmountAtDecision.Equal(decimal.RequireFromString("850.5")))
	assert.True(t, got[0].Timestamp.Equal(at))
}

func TestSiteRepository_PolicyAndSpend(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	repo := NewSiteRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	got, err := repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"cashMax":"1500"}`, string(got.RawPolicy))
	assert.True(t, got.Budget.Monthly.Equal(decimal.NewFromInt(100000)))

	policy := &entity.Policy{DuplicateWindowDays: 7, CashMax: decimal.NewFromInt(3000)}
	require.NoError(t, repo.UpdatePolicy(ctx, site.ID, policy))
	got, err = repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	assert.Contains(t, string(got.RawPolicy), `"duplicateWindowDays":7`)

	march := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.IncrementSpend(ctx, site.ID, decimal.NewFromInt(500), march))
	require.NoError(t, repo.IncrementSpend(ctx, site.ID, decimal.RequireFromString("250.25"), march))

	got, err = repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", got.Statistics.Month)
	assert.True(t, got.Statistics.MonthlySpend.Equal(decimal.RequireFromString("750.25")))
	assert.True(t, got.Statistics.YearlySpend.Equal(decimal.RequireFromString("750.25")))

	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.IncrementSpend(ctx, site.ID, decimal.NewFromInt(100), april))
	got, err = repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	assert.True(t, got.Statistics.MonthlySpend.Equal(decimal.NewFromInt(100)), "new month resets the monthly counter")
	assert.True(t, got.Statistics.YearlySpend.Equal(decimal.RequireFromString("850.25")))

	nextYear := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.IncrementSpend(ctx, site.ID, decimal.NewFromInt(10), nextYear))
	got, err = repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	assert.True(t, got.Statistics.YearlySpend.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2025, got.Statistics.Year)

	assert.Error(t, repo.IncrementSpend(ctx, 999, decimal.NewFromInt(1), march))
}

func TestBudgetLedgerRepository_RecordOnce(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	ctx := context.Background()

	e := newExpense(site.ID, "EXP-2024-000001", "900", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, NewExpenseRepository(db.DB, zap.NewNop()).Create(ctx, e))

	repo := NewBudgetLedgerRepository(db.DB, zap.NewNop())
	entry := &port.BudgetLedgerEntry{ExpenseID: e.ID, SiteID: site.ID, Amount: decimal.NewFromInt(900), CountedAt: time.Now().UTC()}

	inserted, err := repo.Record(ctx, entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Record(ctx, entry)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repo.GetByExpenseID(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(900)))

	none, err := repo.GetByExpenseID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUserRepository_ListByRole(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	other := &entity.Site{Code: "DEL", Name: "Delhi", IsActive: true}
	require.NoError(t, NewSiteRepository(db.DB, zap.NewNop()).Create(context.Background(), other))

	repo := NewUserRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	users := []*entity.User{
		{ID: "a", Name: "A", Role: workflow.RoleL1Approver, SiteID: site.ID, IsActive: true},
		{ID: "b", Name: "B", Role: workflow.RoleL1Approver, SiteID: other.ID, IsActive: true},
		{ID: "c", Name: "C", Role: workflow.RoleL1Approver, SiteID: site.ID, IsActive: false},
		{ID: "d", Name: "D", Role: workflow.RoleFinance, SiteID: site.ID, IsActive: true},
	}
	for _, u := range users {
		require.NoError(t, repo.Create(ctx, u))
	}

	l1, err := repo.ListByRole(ctx, workflow.RoleL1Approver, &site.ID)
	require.NoError(t, err)
	require.Len(t, l1, 1)
	assert.Equal(t, "a", l1[0].ID)

	anySite, err := repo.ListByRole(ctx, workflow.RoleL1Approver, nil)
	require.NoError(t, err)
	assert.Len(t, anySite, 2)

	inactive, err := repo.GetByID(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, inactive)
	assert.False(t, inactive.IsActive)

	// re-creating updates the profile
	users[0].Name = "Renamed"
	require.NoError(t, repo.Create(ctx, users[0]))
	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}

func TestNotificationRepository_Lifecycle(t *testing.T) {
	db := setupDB(t)
	repo := NewNotificationRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	a := &entity.Notification{ExpenseID: 1, EventType: "expense.submitted", RecipientID: "u1", Channel: "lark", Message: "hello"}
	b := &entity.Notification{ExpenseID: 1, EventType: "expense.submitted", RecipientID: "u2", Channel: "lark", Message: "hello"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	assert.Equal(t, entity.NotificationStatusPending, a.Status)

	require.NoError(t, repo.MarkSent(ctx, a.ID, "om_1"))
	require.NoError(t, repo.MarkFailed(ctx, b.ID, "timeout"))

	failed, err := repo.ListFailed(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)
	assert.Equal(t, 1, failed[0].Attempts)
	assert.Equal(t, "timeout", failed[0].ErrorMessage)

	require.NoError(t, repo.MarkFailed(ctx, b.ID, "timeout"))
	require.NoError(t, repo.MarkFailed(ctx, b.ID, "timeout"))
	failed, err = repo.ListFailed(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, failed, "exhausted notifications are not retried")

	all, err := repo.GetByExpenseID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, entity.NotificationStatusSent, all[0].Status)
	assert.Equal(t, "om_1", all[0].MessageID)
	assert.NotNil(t, all[0].SentAt)
}

func TestTransaction_RollbackDiscardsWrites(t *testing.T) {
	db := setupDB(t)
	site := seedSite(t, db)
	tm := sqlite.NewDB(db.DB, zap.NewNop())
	expenses := NewExpenseRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		e := newExpense(site.ID, "EXP-2024-000001", "100", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
		if err := expenses.Create(txCtx, e); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return tm.WithTransaction(txCtx, func(inner context.Context) error {
			if _, err := expenses.NextNumber(inner, 2024); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	list, err := expenses.List(ctx, entity.ExpenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	seq, err := expenses.NextNumber(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "counter increment was rolled back")
}
