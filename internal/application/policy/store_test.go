package policy

import (
	"context"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPolicy() entity.Policy {
	return entity.Policy{
		DuplicateWindowDays: 7,
		CashMax:             decimal.NewFromInt(2000),
		PerCategoryLimits: map[entity.Category]decimal.Decimal{
			entity.CategoryFood: decimal.NewFromInt(1500),
		},
		WeekendDisallow: []string{"sunday"},
	}
}

func TestStore_GetFillsDefaults(t *testing.T) {
	repo := &mockSiteRepo{sites: map[int64]*entity.Site{
		1: {ID: 1, IsActive: true, RawPolicy: []byte(`{"cashMax": 500, "perCategoryLimits": {"TRAVEL": "8000"}}`)},
	}}
	store := NewStore(repo, defaultPolicy(), nopLogger{})

	p, err := store.Get(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 7, p.DuplicateWindowDays)
	assert.True(t, p.CashMax.Equal(decimal.NewFromInt(500)))
	assert.Len(t, p.PerCategoryLimits, 1, "a stored map replaces the default map")
	assert.True(t, p.PerCategoryLimits[entity.CategoryTravel].Equal(decimal.NewFromInt(8000)))
	assert.Equal(t, []string{"sunday"}, p.WeekendDisallow)
}

func TestStore_UpdateReplacesDefaults(t *testing.T) {
	defaults := defaultPolicy()
	defaults.PerCategoryLimits = map[entity.Category]decimal.Decimal{
		entity.CategoryTravel: decimal.NewFromInt(25000),
	}
	defaults.RequireDirectorAbove = map[entity.Category]decimal.Decimal{
		entity.CategoryTravel: decimal.NewFromInt(50000),
	}
	repo := &mockSiteRepo{sites: map[int64]*entity.Site{1: {ID: 1, IsActive: true}}}
	store := NewStore(repo, defaults, nopLogger{})
	ctx := context.Background()

	body, err := ParsePolicyJSON([]byte(`{"perCategoryLimits": {"FOOD": "3000"}, "duplicateWindowDays": 2}`))
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, 1, body))

	p, err := store.Get(ctx, 1)
	require.NoError(t, err)

	assert.Len(t, p.PerCategoryLimits, 1)
	assert.True(t, p.PerCategoryLimits[entity.CategoryFood].Equal(decimal.NewFromInt(3000)))
	_, hasTravel := p.PerCategoryLimits[entity.CategoryTravel]
	assert.False(t, hasTravel, "default TRAVEL limit is cleared")
	assert.Empty(t, p.RequireDirectorAbove)
	assert.Equal(t, 2, p.DuplicateWindowDays)
	assert.True(t, p.CashMax.IsZero(), "fields left out of an update are stored as zero")
	assert.Empty(t, p.WeekendDisallow)

	// other sites still see the defaults
	repo.sites[2] = &entity.Site{ID: 2, IsActive: true}
	other, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, other.PerCategoryLimits[entity.CategoryTravel].Equal(decimal.NewFromInt(25000)))
}

func TestStore_GetDoesNotLeakIntoDefaults(t *testing.T) {
	repo := &mockSiteRepo{sites: map[int64]*entity.Site{
		1: {ID: 1, IsActive: true, RawPolicy: []byte(`{"perCategoryLimits": {"TRAVEL": 8000}}`)},
		2: {ID: 2, IsActive: true},
	}}
	store := NewStore(repo, defaultPolicy(), nopLogger{})

	_, err := store.Get(context.Background(), 1)
	require.NoError(t, err)

	p, err := store.Get(context.Background(), 2)
	require.NoError(t, err)
	_, ok := p.PerCategoryLimits[entity.CategoryTravel]
	assert.False(t, ok)
}

func TestStore_GetUnknownOrInactiveSite(t *testing.T) {
	repo := &mockSiteRepo{sites: map[int64]*entity.Site{
		2: {ID: 2, IsActive: false},
	}}
	store := NewStore(repo, defaultPolicy(), nopLogger{})

	_, err := store.Get(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = store.Get(context.Background(), 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_Update(t *testing.T) {
	repo := &mockSiteRepo{sites: map[int64]*entity.Site{1: {ID: 1, IsActive: true}}}
	store := NewStore(repo, defaultPolicy(), nopLogger{})

	p := &entity.Policy{WeekendDisallow: []string{"Saturday"}}
	require.NoError(t, store.Update(context.Background(), 1, p))
	require.NotNil(t, repo.updatedPolicy)
	assert.Equal(t, []string{"saturday"}, repo.updatedPolicy.WeekendDisallow)

	err := store.Update(context.Background(), 1, &entity.Policy{DuplicateWindowDays: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestParsePolicyJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"duplicateWindowDays": 3, "cashMax": 2000, "requireDirectorAbove": {"TRAVEL": 5000}, "weekendDisallow": ["saturday"]}`, false},
		{"string amounts", `{"perCategoryLimits": {"FOOD": "1500.50"}}`, false},
		{"empty object", `{}`, false},
		{"director map is an array", `{"requireDirectorAbove": [5000]}`, true},
		{"limits map is a string", `{"perCategoryLimits": "FOOD=100"}`, true},
		{"amount is not a number", `{"perCategoryLimits": {"FOOD": "lots"}}`, true},
		{"unknown category", `{"perCategoryLimits": {"YACHTS": 10}}`, true},
		{"negative limit", `{"requireDirectorAbove": {"TRAVEL": -1}}`, true},
		{"limit above ceiling", `{"perCategoryLimits": {"FOOD": "1000000000000000000"}}`, true},
		{"cash max above ceiling", `{"cashMax": "99999999999999999999"}`, true},
		{"unknown field", `{"cashmaximum": 10}`, true},
		{"bad weekday", `{"weekendDisallow": ["caturday"]}`, true},
		{"not json", `cashMax=10`, true},
		{"trailing data", `{} {}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePolicyJSON([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}
