// Package policy holds per-site submission rules and the engine that applies them.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Store reads and writes site policies, filling gaps from defaults
type Store struct {
	sites    port.SiteRepository
	defaults entity.Policy
	logger   Logger
}

// NewStore creates a policy Store
func NewStore(sites port.SiteRepository, defaults entity.Policy, logger Logger) *Store {
	return &Store{sites: sites, defaults: defaults, logger: logger}
}

// LoadSite returns an active site with its effective policy
func (s *Store) LoadSite(ctx context.Context, siteID int64) (*entity.Site, error) {
	site, err := s.sites.GetByID(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if site == nil || !site.IsActive {
		return nil, apperr.NotFound("site %d not found", siteID)
	}

	p, err := s.effective(site.RawPolicy)
	if err != nil {
		s.logger.Error("Stored policy is unreadable, using defaults", "site_id", siteID, "error", err)
		p = clonePolicy(s.defaults)
	}
	site.Policy = p
	return site, nil
}

// Get returns the effective policy of a site
func (s *Store) Get(ctx context.Context, siteID int64) (*entity.Policy, error) {
	site, err := s.LoadSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return &site.Policy, nil
}

// Update validates and stores a complete policy for the site
func (s *Store) Update(ctx context.Context, siteID int64, p *entity.Policy) error {
	if err := Validate(p); err != nil {
		return err
	}

	site, err := s.sites.GetByID(ctx, siteID)
	if err != nil {
		return fmt.Errorf("get site: %w", err)
	}
	if site == nil || !site.IsActive {
		return apperr.NotFound("site %d not found", siteID)
	}

	if err := s.sites.UpdatePolicy(ctx, siteID, p); err != nil {
		return fmt.Errorf("update policy: %w", err)
	}

	s.logger.Info("Site policy updated", "site_id", siteID)
	return nil
}

// effective overlays the stored document on a copy of the defaults.
// Each top-level key present in the document replaces its default whole,
// maps included; absent keys keep the default. Update writes every key, so
// a policy stored through it no longer depends on the defaults.
func (s *Store) effective(raw []byte) (entity.Policy, error) {
	p := clonePolicy(s.defaults)
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return entity.Policy{}, err
	}
	var stored entity.Policy
	if err := json.Unmarshal(raw, &stored); err != nil {
		return entity.Policy{}, err
	}

	overrides := map[string]func(){
		"duplicateWindowDays":      func() { p.DuplicateWindowDays = stored.DuplicateWindowDays },
		"duplicateAmountTolerance": func() { p.DuplicateAmountTolerance = stored.DuplicateAmountTolerance },
		"perCategoryLimits":        func() { p.PerCategoryLimits = stored.PerCategoryLimits },
		"cashMax":                  func() { p.CashMax = stored.CashMax },
		"requireDirectorAbove":     func() { p.RequireDirectorAbove = stored.RequireDirectorAbove },
		"weekendDisallow":          func() { p.WeekendDisallow = stored.WeekendDisallow },
	}
	for key := range present {
		if apply, ok := overrides[key]; ok {
			apply()
		}
	}
	return p, nil
}

// ParsePolicyJSON strictly decodes and validates a policy document
func ParsePolicyJSON(data []byte) (*entity.Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p entity.Policy
	if err := dec.Decode(&p); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "malformed policy document")
	}
	if dec.More() {
		return nil, apperr.Validation("malformed policy document: trailing data")
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks a policy and normalizes weekday names to lower case
func Validate(p *entity.Policy) error {
	if p.DuplicateWindowDays < 0 {
		return apperr.Validation("duplicateWindowDays must be >= 0")
	}
	if !entity.AmountInRange(p.DuplicateAmountTolerance) {
		return apperr.Validation("duplicateAmountTolerance must be between 0 and %s", entity.MaxAmount)
	}
	if !entity.AmountInRange(p.CashMax) {
		return apperr.Validation("cashMax must be between 0 and %s", entity.MaxAmount)
	}
	if err := validateAmounts("perCategoryLimits", p.PerCategoryLimits); err != nil {
		return err
	}
	if err := validateAmounts("requireDirectorAbove", p.RequireDirectorAbove); err != nil {
		return err
	}

	for i, day := range p.WeekendDisallow {
		name := strings.ToLower(strings.TrimSpace(day))
		if !isWeekday(name) {
			return apperr.Validation("weekendDisallow: unknown weekday %q", day)
		}
		p.WeekendDisallow[i] = name
	}
	return nil
}

func validateAmounts(field string, m map[entity.Category]decimal.Decimal) error {
	for c, v := range m {
		if !c.IsValid() {
			return apperr.Validation("%s: unknown category %q", field, c)
		}
		if !entity.AmountInRange(v) {
			return apperr.Validation("%s: amount for %s must be between 0 and %s", field, c, entity.MaxAmount)
		}
	}
	return nil
}

func isWeekday(name string) bool {
	for _, w := range entity.Weekdays {
		if w == name {
			return true
		}
	}
	return false
}

func clonePolicy(p entity.Policy) entity.Policy {
	out := p
	out.PerCategoryLimits = make(map[entity.Category]decimal.Decimal, len(p.PerCategoryLimits))
	for k, v := range p.PerCategoryLimits {
		out.PerCategoryLimits[k] = v
	}
	out.RequireDirectorAbove = make(map[entity.Category]decimal.Decimal, len(p.RequireDirectorAbove))
	for k, v := range p.RequireDirectorAbove {
		out.RequireDirectorAbove[k] = v
	}
	out.WeekendDisallow = append([]string(nil), p.WeekendDisallow...)
	return out
}
