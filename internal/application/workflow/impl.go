package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/access"
	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

const maxTitleLength = 200

// engineImpl is the concrete implementation of ApprovalWorkflow
type engineImpl struct {
	expenses   port.ExpenseRepository
	records    port.ApprovalRecordRepository
	sites      SiteLoader
	validator  PolicyValidator
	budget     BudgetRecorder
	txManager  port.TransactionManager
	locker     port.Locker
	logger     Logger
	dispatcher dispatcher.Dispatcher
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new approval workflow
func NewEngine(
	expenses port.ExpenseRepository,
	records port.ApprovalRecordRepository,
	sites SiteLoader,
	validator PolicyValidator,
	budget BudgetRecorder,
	txManager port.TransactionManager,
	locker port.Locker,
	logger Logger,
	opts ...EngineOption,
) ApprovalWorkflow {
	e := &engineImpl{
		expenses:  expenses,
		records:   records,
		sites:     sites,
		validator: validator,
		budget:    budget,
		txManager: txManager,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func expenseLockKey(id int64) string {
	return fmt.Sprintf("expense:%d", id)
}

func submitLockKey(siteID int64, submitterID string) string {
	return fmt.Sprintf("submit:%d:%s", siteID, submitterID)
}

// FormatNumber renders the human-readable expense number
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("EXP-%d-%06d", year, seq)
}

// Create validates and stores a new expense
func (e *engineImpl) Create(ctx context.Context, in CreateInput) (*entity.Expense, error) {
	if in.Submitter == nil || !in.Submitter.IsActive {
		return nil, apperr.New(apperr.CodeAuthRequired, "an active submitter is required")
	}

	siteID := in.SiteID
	if siteID == 0 {
		siteID = in.Submitter.SiteID
	}
	if !access.For(in.Submitter).CoversSite(siteID) {
		return nil, apperr.PermissionDenied("cannot submit expenses for site %d", siteID)
	}

	exp, err := e.newExpense(in, siteID)
	if err != nil {
		return nil, err
	}

	err = e.locker.WithLock(ctx, submitLockKey(siteID, in.Submitter.ID), func(ctx context.Context) error {
		site, err := e.sites.LoadSite(ctx, siteID)
		if err != nil {
			return err
		}

		if !in.Draft {
			if err := e.applyPolicy(ctx, exp, site); err != nil {
				return err
			}
			machine := BuildExpenseStateMachine(domainwf.StateDraft)
			if _, err := machine.Fire(ctx, domainwf.TriggerSubmit, exp.Facts()); err != nil {
				return apperr.Wrap(apperr.CodeInvalidTransition, err, "submit expense")
			}
			now := e.now()
			exp.Status = machine.State()
			exp.SubmissionDate = &now
		}

		return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			year := e.now().Year()
			seq, err := e.expenses.NextNumber(txCtx, year)
			if err != nil {
				return fmt.Errorf("next expense number: %w", err)
			}
			exp.Number = FormatNumber(year, seq)

			if err := e.expenses.Create(txCtx, exp); err != nil {
				return fmt.Errorf("create expense: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		e.logFailure("Failed to create expense", err, "submitter_id", in.Submitter.ID, "site_id", siteID)
		return nil, err
	}

	e.logger.Info("Expense created",
		"expense_id", exp.ID,
		"number", exp.Number,
		"status", exp.Status,
		"requires_director_signoff", exp.RequiresDirectorSignoff,
	)

	if exp.Status == domainwf.StateSubmitted {
		e.publish(ctx, e.submittedEvent(exp))
	}
	return exp, nil
}

// Submit moves a draft into the approval chain
func (e *engineImpl) Submit(ctx context.Context, expenseID int64, actor *entity.User) (*entity.Expense, error) {
	var out *entity.Expense

	err := e.locker.WithLock(ctx, expenseLockKey(expenseID), func(ctx context.Context) error {
		exp, err := e.load(ctx, expenseID)
		if err != nil {
			return err
		}
		if exp.SubmitterID != actor.ID {
			return apperr.PermissionDenied("only the submitter can submit expense %s", exp.Number)
		}
		if exp.Status != domainwf.StateDraft {
			return apperr.InvalidTransition("expense %s is already %s", exp.Number, exp.Status)
		}

		return e.locker.WithLock(ctx, submitLockKey(exp.SiteID, exp.SubmitterID), func(ctx context.Context) error {
			site, err := e.sites.LoadSite(ctx, exp.SiteID)
			if err != nil {
				return err
			}
			if err := e.applyPolicy(ctx, exp, site); err != nil {
				return err
			}

			machine := BuildExpenseStateMachine(exp.Status)
			if _, err := machine.Fire(ctx, domainwf.TriggerSubmit, exp.Facts()); err != nil {
				return apperr.Wrap(apperr.CodeInvalidTransition, err, "submit expense %s", exp.Number)
			}
			now := e.now()
			exp.Status = machine.State()
			exp.SubmissionDate = &now

			if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
				return e.save(txCtx, exp)
			}); err != nil {
				return err
			}
			out = exp
			return nil
		})
	})
	if err != nil {
		e.logFailure("Failed to submit expense", err, "expense_id", expenseID, "actor_id", actor.ID)
		return nil, err
	}

	e.logger.Info("Expense submitted", "expense_id", out.ID, "number", out.Number)
	e.publish(ctx, e.submittedEvent(out))
	return out, nil
}

// StartReview moves a submitted expense to under_review
func (e *engineImpl) StartReview(ctx context.Context, expenseID int64, actor *entity.User) (*entity.Expense, error) {
	var out *entity.Expense
	var changed bool

	err := e.locker.WithLock(ctx, expenseLockKey(expenseID), func(ctx context.Context) error {
		exp, err := e.load(ctx, expenseID)
		if err != nil {
			return err
		}

		scope := access.For(actor)
		if scope.Level != domainwf.LevelL1 || !scope.CoversSite(exp.SiteID) {
			return apperr.PermissionDenied("only an L1 approver of the site can start review")
		}

		if exp.Status == domainwf.StateUnderReview {
			out = exp
			return nil
		}

		machine := BuildExpenseStateMachine(exp.Status)
		if _, err := machine.Fire(ctx, domainwf.TriggerStartReview, exp.Facts()); err != nil {
			return apperr.Wrap(apperr.CodeInvalidTransition, err, "start review of expense %s", exp.Number)
		}
		exp.Status = machine.State()

		if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return e.save(txCtx, exp)
		}); err != nil {
			return err
		}
		out, changed = exp, true
		return nil
	})
	if err != nil {
		e.logFailure("Failed to start review", err, "expense_id", expenseID, "actor_id", actor.ID)
		return nil, err
	}

	if changed {
		e.publish(ctx, e.statusChangedEvent(out, domainwf.StateSubmitted, actor.ID))
	}
	return out, nil
}

// Approve records an approval at the actor's level
func (e *engineImpl) Approve(ctx context.Context, in DecisionInput) (*entity.Expense, error) {
	return e.decide(ctx, in, domainwf.ActionApprove)
}

// Reject records a rejection at the actor's level
func (e *engineImpl) Reject(ctx context.Context, in DecisionInput) (*entity.Expense, error) {
	return e.decide(ctx, in, domainwf.ActionReject)
}

func (e *engineImpl) decide(ctx context.Context, in DecisionInput, action domainwf.Action) (*entity.Expense, error) {
	if in.Actor == nil {
		return nil, apperr.New(apperr.CodeAuthRequired, "approver is required")
	}

	var (
		out    *entity.Expense
		from   domainwf.State
		record *entity.ApprovalRecord
	)

	err := e.locker.WithLock(ctx, expenseLockKey(in.ExpenseID), func(ctx context.Context) error {
		exp, err := e.load(ctx, in.ExpenseID)
		if err != nil {
			return err
		}
		e.verifyLog(exp)

		pending, err := e.authorizeDecision(exp, in)
		if err != nil {
			return err
		}

		now := e.now()
		record = &entity.ApprovalRecord{
			ExpenseID:  exp.ID,
			ApproverID: in.Actor.ID,
			Level:      pending,
			Action:     action,
			Comment:    strings.TrimSpace(in.Comment),
			Timestamp:  now,
		}

		if action == domainwf.ActionReject {
			if record.Comment == "" {
				return apperr.Validation("a comment is required to reject")
			}
		} else if in.ModifiedAmount != nil {
			if err := applyModification(exp, record, in); err != nil {
				return err
			}
		}
		record.AmountAtDecision = exp.Amount

		from = exp.Status
		to, err := e.transition(ctx, exp, record)
		if err != nil {
			return err
		}
		exp.Status = to

		if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.records.Append(txCtx, record); err != nil {
				return fmt.Errorf("append approval record: %w", err)
			}
			if err := e.save(txCtx, exp); err != nil {
				return err
			}
			if exp.Status == domainwf.StateApproved {
				if _, err := e.budget.RecordApproved(txCtx, exp, now); err != nil {
					return fmt.Errorf("record approved budget: %w", err)
				}
			}
			return nil
		}); err != nil {
			return err
		}

		exp.ApprovalHistory = append(exp.ApprovalHistory, record)
		out = exp
		return nil
	})
	if err != nil {
		e.logFailure("Failed to record decision", err,
			"expense_id", in.ExpenseID,
			"actor_id", in.Actor.ID,
			"action", action,
		)
		return nil, err
	}

	e.verifyLog(out)
	e.logger.Info("Decision recorded",
		"expense_id", out.ID,
		"number", out.Number,
		"actor_id", in.Actor.ID,
		"level", record.Level,
		"action", record.Action,
		"from_status", from,
		"to_status", out.Status,
	)

	e.publish(ctx, e.decisionEvents(out, from, record)...)
	return out, nil
}

// authorizeDecision returns the level the actor decides at.
// Check order: terminal state, replayed decision, nothing pending, then role and scope.
func (e *engineImpl) authorizeDecision(exp *entity.Expense, in DecisionInput) (domainwf.Level, error) {
	if exp.Status.IsTerminal() {
		return domainwf.LevelNone, apperr.InvalidTransition("expense %s is %s", exp.Number, exp.Status)
	}

	actorLevel, levelErr := domainwf.LevelForRole(in.Actor.Role)
	if levelErr == nil {
		decisions := exp.Decisions()
		if domainwf.HasDecision(decisions, in.Actor.ID, actorLevel) {
			return domainwf.LevelNone, apperr.AlreadyDecided("%s already decided expense %s at level %s",
				in.Actor.ID, exp.Number, actorLevel)
		}
		if domainwf.HasLevelDecision(decisions, actorLevel) {
			return domainwf.LevelNone, apperr.AlreadyDecided("level %s already decided expense %s",
				actorLevel, exp.Number)
		}
	}

	pending, ok := domainwf.PendingLevel(exp.Status, exp.Facts())
	if !ok {
		return domainwf.LevelNone, apperr.InvalidTransition("expense %s is %s and awaits no approval", exp.Number, exp.Status)
	}

	switch {
	case levelErr != nil:
		return domainwf.LevelNone, apperr.PermissionDenied("role %s cannot approve expenses", in.Actor.Role)
	case in.Level != domainwf.LevelNone && in.Level != actorLevel:
		return domainwf.LevelNone, apperr.PermissionDenied("role %s acts at level %d, not %d", in.Actor.Role, actorLevel, in.Level)
	case pending != actorLevel:
		return domainwf.LevelNone, apperr.PermissionDenied("expense %s awaits level %s, not %s", exp.Number, pending, actorLevel)
	case !access.For(in.Actor).CoversSite(exp.SiteID):
		return domainwf.LevelNone, apperr.PermissionDenied("expense %s belongs to another site", exp.Number)
	case exp.SubmitterID == in.Actor.ID:
		return domainwf.LevelNone, apperr.PermissionDenied("approvers cannot decide their own expenses")
	}
	return pending, nil
}

func applyModification(exp *entity.Expense, record *entity.ApprovalRecord, in DecisionInput) error {
	amount := *in.ModifiedAmount
	reason := strings.TrimSpace(in.ModificationReason)

	if reason == "" {
		return apperr.Validation("modificationReason is required when modifying the amount")
	}
	if !amount.IsPositive() {
		return apperr.Validation("modifiedAmount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("modifiedAmount has more than 2 decimal places")
	}
	if !entity.AmountInRange(amount) {
		return apperr.Validation("modifiedAmount must be at most %s", entity.MaxAmount)
	}
	if amount.Equal(exp.Amount) {
		return nil
	}

	exp.Amount = amount
	exp.ModificationReason = reason
	record.Action = domainwf.ActionModify
	if record.Comment == "" {
		record.Comment = reason
	} else {
		record.Comment = fmt.Sprintf("%s (modified: %s)", record.Comment, reason)
	}
	return nil
}

// transition fires the triggers one decision implies and returns the resulting state
func (e *engineImpl) transition(ctx context.Context, exp *entity.Expense, record *entity.ApprovalRecord) (domainwf.State, error) {
	machine := BuildExpenseStateMachine(exp.Status)
	facts := exp.Facts()

	fire := func(t domainwf.Trigger) error {
		if _, err := machine.Fire(ctx, t, facts); err != nil {
			return apperr.Wrap(apperr.CodeInvalidTransition, err, "expense %s", exp.Number)
		}
		return nil
	}

	if machine.State() == domainwf.StateSubmitted && record.Action != domainwf.ActionReject {
		if err := fire(domainwf.TriggerStartReview); err != nil {
			return "", err
		}
	}

	switch {
	case record.Action == domainwf.ActionReject:
		if err := fire(domainwf.TriggerReject); err != nil {
			return "", err
		}
	case record.Level == domainwf.LevelDirector:
		if err := fire(domainwf.TriggerDirectorSignoff); err != nil {
			return "", err
		}
	default:
		if err := fire(domainwf.TriggerApprove); err != nil {
			return "", err
		}
		if machine.CanFire(ctx, domainwf.TriggerFinalize, facts) {
			if err := fire(domainwf.TriggerFinalize); err != nil {
				return "", err
			}
		}
	}

	return machine.State(), nil
}

// MarkReimbursed records that the submitter was reimbursed
func (e *engineImpl) MarkReimbursed(ctx context.Context, expenseID int64, actor *entity.User, reference string) (*entity.Expense, error) {
	return e.settle(ctx, expenseID, actor, reference, domainwf.TriggerReimburse)
}

// MarkPaymentProcessed records that payment was completed
func (e *engineImpl) MarkPaymentProcessed(ctx context.Context, expenseID int64, actor *entity.User, reference string) (*entity.Expense, error) {
	return e.settle(ctx, expenseID, actor, reference, domainwf.TriggerProcessPayment)
}

// settle applies a payment transition; it touches payment metadata only
func (e *engineImpl) settle(ctx context.Context, expenseID int64, actor *entity.User, reference string, trigger domainwf.Trigger) (*entity.Expense, error) {
	var out *entity.Expense
	var from domainwf.State

	err := e.locker.WithLock(ctx, expenseLockKey(expenseID), func(ctx context.Context) error {
		exp, err := e.load(ctx, expenseID)
		if err != nil {
			return err
		}
		if actor.Role != domainwf.RoleFinance {
			return apperr.PermissionDenied("only finance can record payments")
		}

		machine := BuildExpenseStateMachine(exp.Status)
		if _, err := machine.Fire(ctx, trigger, exp.Facts()); err != nil {
			return apperr.Wrap(apperr.CodeInvalidTransition, err, "expense %s is %s", exp.Number, exp.Status)
		}

		now := e.now()
		from = exp.Status
		exp.Status = machine.State()
		if ref := strings.TrimSpace(reference); ref != "" {
			exp.PaymentReference = ref
		}
		if trigger == domainwf.TriggerReimburse {
			exp.ReimbursedAt = &now
		} else {
			exp.PaidAt = &now
		}

		if err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return e.save(txCtx, exp)
		}); err != nil {
			return err
		}
		out = exp
		return nil
	})
	if err != nil {
		e.logFailure("Failed to record payment", err, "expense_id", expenseID, "trigger", trigger)
		return nil, err
	}

	e.logger.Info("Payment status recorded", "expense_id", out.ID, "status", out.Status)

	evtType := event.TypeExpenseReimbursed
	if out.Status == domainwf.StatePaymentProcessed {
		evtType = event.TypeExpensePaymentProcessed
	}
	main := event.NewEvent(evtType, out.ID, e.payload(out, actor.ID))
	e.publish(ctx, main, e.statusChangedEventWithCorrelation(out, from, actor.ID, main.CorrelationID))
	return out, nil
}

// Archive soft-deletes a draft or rejected expense
func (e *engineImpl) Archive(ctx context.Context, expenseID int64, actor *entity.User) error {
	err := e.locker.WithLock(ctx, expenseLockKey(expenseID), func(ctx context.Context) error {
		exp, err := e.load(ctx, expenseID)
		if err != nil {
			return err
		}
		if exp.SubmitterID != actor.ID && actor.Role != domainwf.RoleAdmin {
			return apperr.PermissionDenied("only the submitter or an admin can archive expense %s", exp.Number)
		}
		if exp.Status != domainwf.StateDraft && exp.Status != domainwf.StateRejected {
			return apperr.InvalidTransition("expense %s is %s and cannot be archived", exp.Number, exp.Status)
		}
		return e.expenses.Archive(ctx, exp.ID, e.now())
	})
	if err != nil {
		e.logFailure("Failed to archive expense", err, "expense_id", expenseID, "actor_id", actor.ID)
		return err
	}

	e.logger.Info("Expense archived", "expense_id", expenseID, "actor_id", actor.ID)
	return nil
}

// Get returns an expense visible to the actor
func (e *engineImpl) Get(ctx context.Context, expenseID int64, actor *entity.User) (*entity.Expense, error) {
	exp, err := e.load(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !access.For(actor).CanView(exp) {
		return nil, apperr.PermissionDenied("expense %d is outside your scope", expenseID)
	}
	return exp, nil
}

// History returns the approval log of an expense
func (e *engineImpl) History(ctx context.Context, expenseID int64, actor *entity.User) ([]*entity.ApprovalRecord, error) {
	exp, err := e.Get(ctx, expenseID, actor)
	if err != nil {
		return nil, err
	}
	return exp.ApprovalHistory, nil
}

// List returns expenses visible to the actor
func (e *engineImpl) List(ctx context.Context, actor *entity.User, filter entity.ExpenseFilter) ([]*entity.Expense, error) {
	scope := access.For(actor)
	if filter.SiteID != nil && !scope.CoversSite(*filter.SiteID) {
		return nil, apperr.PermissionDenied("site %d is outside your scope", *filter.SiteID)
	}

	expenses, err := e.expenses.List(ctx, scope.ListFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// PendingApprovals returns expenses waiting on the actor's level
func (e *engineImpl) PendingApprovals(ctx context.Context, actor *entity.User, limit, offset int) ([]*entity.Expense, error) {
	scope := access.For(actor)
	filter, ok := scope.PendingFilter()
	if !ok {
		return nil, apperr.PermissionDenied("role %s has no approval level", actor.Role)
	}
	filter.Limit = limit
	filter.Offset = offset

	candidates, err := e.expenses.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pending expenses: %w", err)
	}

	pending := make([]*entity.Expense, 0, len(candidates))
	for _, exp := range candidates {
		lvl, ok := domainwf.PendingLevel(exp.Status, domainwf.Facts{RequiresDirectorSignoff: exp.RequiresDirectorSignoff})
		if ok && lvl == scope.Level {
			pending = append(pending, exp)
		}
	}
	return pending, nil
}

// load returns a live expense with its approval history
func (e *engineImpl) load(ctx context.Context, id int64) (*entity.Expense, error) {
	exp, err := e.expenses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if exp == nil || exp.IsArchived() {
		return nil, apperr.NotFound("expense %d not found", id)
	}

	records, err := e.records.ListByExpenseID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	exp.ApprovalHistory = records
	return exp, nil
}

// save writes the expense under its version; a lost race reads as an invalid transition
func (e *engineImpl) save(ctx context.Context, exp *entity.Expense) error {
	exp.UpdatedAt = e.now()
	ok, err := e.expenses.Update(ctx, exp)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if !ok {
		return apperr.InvalidTransition("expense %s was changed by another request", exp.Number)
	}
	return nil
}

func (e *engineImpl) applyPolicy(ctx context.Context, exp *entity.Expense, site *entity.Site) error {
	decision, err := e.validator.Validate(ctx, exp, site)
	if err != nil {
		return err
	}
	exp.RequiresDirectorSignoff = decision.RequiresDirectorSignoff
	return nil
}

// verifyLog compares the stored status with a replay of the approval log
func (e *engineImpl) verifyLog(exp *entity.Expense) {
	if len(exp.ApprovalHistory) == 0 {
		return
	}
	want := domainwf.Replay(domainwf.StateSubmitted, exp.Decisions(), exp.RequiresDirectorSignoff)
	got := exp.Status
	if got.IsFullyApproved() {
		got = domainwf.StateApproved
	}
	if want != got {
		e.logger.Error("Approval log disagrees with stored status",
			"expense_id", exp.ID,
			"stored_status", exp.Status,
			"replayed_status", want,
		)
	}
}

func (e *engineImpl) newExpense(in CreateInput, siteID int64) (*entity.Expense, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if len(title) > maxTitleLength {
		return nil, apperr.Validation("title must be at most %d characters", maxTitleLength)
	}
	if !in.Category.IsValid() {
		return nil, apperr.Validation("unknown category %q", in.Category)
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be positive")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, apperr.Validation("amount has more than 2 decimal places")
	}
	if !entity.AmountInRange(in.Amount) {
		return nil, apperr.Validation("amount must be at most %s", entity.MaxAmount)
	}
	if !in.PaymentMethod.IsValid() {
		return nil, apperr.Validation("unknown payment method %q", in.PaymentMethod)
	}
	if !entity.ValidPriority(in.Priority) {
		return nil, apperr.Validation("unknown priority %q", in.Priority)
	}
	if in.ExpenseDate.IsZero() {
		return nil, apperr.Validation("expenseDate is required")
	}

	date := truncateDay(in.ExpenseDate)
	if date.After(truncateDay(e.now())) {
		return nil, apperr.Validation("expenseDate cannot be in the future")
	}

	currency := entity.DefaultCurrency
	if strings.TrimSpace(in.Currency) != "" {
		c, err := utils.NormalizeCurrency(in.Currency)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, err, "currency must be an ISO-4217 code")
		}
		currency = c
	}

	priority := in.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}

	now := e.now()
	return &entity.Expense{
		Title:              title,
		Description:        strings.TrimSpace(in.Description),
		Category:           in.Category,
		Amount:             in.Amount,
		OriginalAmount:     in.Amount,
		Currency:           currency,
		PaymentMethod:      in.PaymentMethod,
		SiteID:             siteID,
		SubmitterID:        in.Submitter.ID,
		Department:         strings.TrimSpace(in.Department),
		ExpenseDate:        date,
		Status:             domainwf.StateDraft,
		DirectorEscalation: in.DirectorEscalation,
		Priority:           priority,
		Attachments:        in.Attachments,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *engineImpl) payload(exp *entity.Expense, actorID string) map[string]interface{} {
	return map[string]interface{}{
		event.KeyExpenseNumber: exp.Number,
		event.KeySubmitterID:   exp.SubmitterID,
		event.KeySiteID:        exp.SiteID,
		event.KeyAmount:        exp.Amount.String(),
		event.KeyToStatus:      exp.Status.String(),
		event.KeyActorID:       actorID,
	}
}

func (e *engineImpl) submittedEvent(exp *entity.Expense) *event.Event {
	evt := event.NewEvent(event.TypeExpenseSubmitted, exp.ID, e.payload(exp, exp.SubmitterID))
	return evt.WithPayload(event.KeyNextLevel, int64(domainwf.LevelL1))
}

func (e *engineImpl) statusChangedEvent(exp *entity.Expense, from domainwf.State, actorID string) *event.Event {
	return event.NewEvent(event.TypeStatusChanged, exp.ID, e.payload(exp, actorID)).
		WithPayload(event.KeyFromStatus, from.String())
}

func (e *engineImpl) statusChangedEventWithCorrelation(exp *entity.Expense, from domainwf.State, actorID, correlationID string) *event.Event {
	return event.NewEventWithCorrelation(event.TypeStatusChanged, exp.ID, e.payload(exp, actorID), correlationID).
		WithPayload(event.KeyFromStatus, from.String())
}

func (e *engineImpl) decisionEvents(exp *entity.Expense, from domainwf.State, record *entity.ApprovalRecord) []*event.Event {
	payload := e.payload(exp, record.ApproverID)
	payload[event.KeyLevel] = int64(record.Level)
	payload[event.KeyComment] = record.Comment

	var main *event.Event
	if record.Action == domainwf.ActionReject {
		main = event.NewEvent(event.TypeExpenseRejected, exp.ID, payload)
	} else {
		main = event.NewEvent(event.TypeExpenseLevelApproved, exp.ID, payload)
		if next, ok := domainwf.PendingLevel(exp.Status, exp.Facts()); ok {
			main = main.WithPayload(event.KeyNextLevel, int64(next))
		}
	}

	events := []*event.Event{main}
	if exp.Status == domainwf.StateApproved {
		events = append(events, event.NewEventWithCorrelation(event.TypeExpenseApproved, exp.ID, payload, main.CorrelationID))
	}
	return append(events, e.statusChangedEventWithCorrelation(exp, from, record.ApproverID, main.CorrelationID))
}

// publish hands events to the dispatcher after commit; delivery never affects the transition
func (e *engineImpl) publish(ctx context.Context, evts ...*event.Event) {
	if e.dispatcher == nil || len(evts) == 0 {
		return
	}
	e.dispatcher.DispatchAsync(ctx, evts...)
}

// logFailure logs infrastructure failures at error level and business rejections at info
func (e *engineImpl) logFailure(msg string, err error, keysAndValues ...interface{}) {
	kv := append(keysAndValues, "error", err)
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Code != apperr.CodeInternal {
		e.logger.Info(msg, append(kv, "error_code", appErr.Code)...)
		return
	}
	e.logger.Error(msg, kv...)
}
