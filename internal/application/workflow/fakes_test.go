package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingLogger keeps error messages so tests can assert on log-only failures
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {}
func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

type memExpenseRepo struct {
	mu       sync.Mutex
	rows     map[int64]*entity.Expense
	nextID   int64
	counters map[int]int64
	// staleUpdates forces the next N updates to report a version conflict
	staleUpdates int
}

func newMemExpenseRepo() *memExpenseRepo {
	return &memExpenseRepo{rows: map[int64]*entity.Expense{}, counters: map[int]int64{}}
}

func copyExpense(e *entity.Expense) *entity.Expense {
	cp := *e
	cp.ApprovalHistory = nil
	return &cp
}

func (m *memExpenseRepo) Create(ctx context.Context, e *entity.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.rows[e.ID] = copyExpense(e)
	return nil
}

func (m *memExpenseRepo) NextNumber(ctx context.Context, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[year]++
	return m.counters[year], nil
}

func (m *memExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return copyExpense(e), nil
}

func (m *memExpenseRepo) Update(ctx context.Context, e *entity.Expense) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleUpdates > 0 {
		m.staleUpdates--
		return false, nil
	}
	cur, ok := m.rows[e.ID]
	if !ok || cur.Version != e.Version {
		return false, nil
	}
	e.Version++
	m.rows[e.ID] = copyExpense(e)
	return true, nil
}

func (m *memExpenseRepo) FindDuplicates(ctx context.Context, q port.DuplicateQuery) ([]*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Expense
	for _, e := range m.rows {
		if e.ID == q.ExcludeID || e.IsArchived() || e.Status == domainwf.StateRejected {
			continue
		}
		if e.SubmitterID != q.SubmitterID || e.SiteID != q.SiteID || e.Category != q.Category {
			continue
		}
		if e.OriginalAmount.LessThan(q.MinAmount) || e.OriginalAmount.GreaterThan(q.MaxAmount) {
			continue
		}
		if e.ExpenseDate.Before(q.From) || e.ExpenseDate.After(q.To) {
			continue
		}
		out = append(out, copyExpense(e))
	}
	return out, nil
}

func (m *memExpenseRepo) List(ctx context.Context, f entity.ExpenseFilter) ([]*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Expense
	for _, e := range m.rows {
		if e.IsArchived() {
			continue
		}
		if f.SiteID != nil && e.SiteID != *f.SiteID {
			continue
		}
		if f.SubmitterID != "" && e.SubmitterID != f.SubmitterID {
			continue
		}
		if f.ExcludeSubmitterID != "" && e.SubmitterID == f.ExcludeSubmitterID {
			continue
		}
		if len(f.Statuses) > 0 && !containsState(f.Statuses, e.Status) {
			continue
		}
		out = append(out, copyExpense(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsState(states []domainwf.State, s domainwf.State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func (m *memExpenseRepo) Archive(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[id]; ok {
		e.ArchivedAt = &at
	}
	return nil
}

type memRecordRepo struct {
	mu      sync.Mutex
	records []*entity.ApprovalRecord
}

func (m *memRecordRepo) Append(ctx context.Context, r *entity.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.records) + 1)
	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

func (m *memRecordRepo) ListByExpenseID(ctx context.Context, expenseID int64) ([]*entity.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalRecord
	for _, r := range m.records {
		if r.ExpenseID == expenseID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSiteRepo struct {
	mu    sync.Mutex
	sites map[int64]*entity.Site
}

func (m *memSiteRepo) GetByID(ctx context.Context, id int64) (*entity.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSiteRepo) Create(ctx context.Context, s *entity.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[s.ID] = s
	return nil
}

func (m *memSiteRepo) UpdatePolicy(ctx context.Context, id int64, p *entity.Policy) error {
	return nil
}

func (m *memSiteRepo) IncrementSpend(ctx context.Context, id int64, amount decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sites[id]
	month := at.Format("2006-01")
	if s.Statistics.Year != at.Year() {
		s.Statistics.YearlySpend = decimal.Zero
		s.Statistics.Year = at.Year()
	}
	if s.Statistics.Month != month {
		s.Statistics.MonthlySpend = decimal.Zero
		s.Statistics.Month = month
	}
	s.Statistics.MonthlySpend = s.Statistics.MonthlySpend.Add(amount)
	s.Statistics.YearlySpend = s.Statistics.YearlySpend.Add(amount)
	return nil
}

func (m *memSiteRepo) monthlySpend(id int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sites[id].Statistics.MonthlySpend
}

type memLedger struct {
	mu      sync.Mutex
	entries map[int64]*port.BudgetLedgerEntry
}

func (m *memLedger) Record(ctx context.Context, e *port.BudgetLedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ExpenseID]; ok {
		return false, nil
	}
	m.entries[e.ExpenseID] = e
	return true, nil
}

func (m *memLedger) GetByExpenseID(ctx context.Context, id int64) (*port.BudgetLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id], nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Subscribe(t event.Type, h dispatcher.Handler) {}
func (d *recordingDispatcher) SubscribeNamed(t event.Type, name string, h dispatcher.Handler) {
}
func (d *recordingDispatcher) SubscribeAll(ts []event.Type, name string, h dispatcher.Handler) {}
func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.DispatchAsync(ctx, evt)
	return nil
}
func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evts ...*event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evts...)
}
func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}
