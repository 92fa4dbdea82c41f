package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/access"
	"github.com/garyjia/expense-approval/internal/application/policy"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

const maxPolicyBody = 64 << 10

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	if h.deps.Health != nil {
		if err := h.deps.Health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp})
			return
		}
	}

	respondOK(c, http.StatusOK, resp)
}

// CreateExpense handles POST /api/v1/expenses/create
func (h *Handlers) CreateExpense(c *gin.Context) {
	user := currentUser(c)

	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.CodeValidation, err, "invalid request body"))
		return
	}

	date, err := parseDate(req.ExpenseDate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	siteID := req.SiteID
	if siteID == 0 {
		siteID = user.SiteID
	}

	category, _ := entity.ParseCategory(req.Category)

	exp, err := h.deps.Workflow.Create(c.Request.Context(), workflow.CreateInput{
		Submitter:          user,
		SiteID:             siteID,
		Title:              utils.SanitizeString(req.Title),
		Description:        utils.SanitizeString(req.Description),
		Category:           category,
		Amount:             req.Amount,
		Currency:           req.Currency,
		PaymentMethod:      entity.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Department:         utils.SanitizeString(req.Department),
		ExpenseDate:        date,
		Priority:           strings.ToLower(strings.TrimSpace(req.Priority)),
		Attachments:        req.Attachments,
		DirectorEscalation: req.DirectorEscalation,
		Draft:              req.Draft,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, exp)
}

// SubmitExpense handles POST /api/v1/expenses/:id/submit
func (h *Handlers) SubmitExpense(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	exp, err := h.deps.Workflow.Submit(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// StartReview handles POST /api/v1/expenses/:id/start-review
func (h *Handlers) StartReview(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	exp, err := h.deps.Workflow.StartReview(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	exp, err := h.deps.Workflow.Get(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// GetHistory handles GET /api/v1/expenses/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	records, err := h.deps.Workflow.History(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if records == nil {
		records = []*entity.ApprovalRecord{}
	}
	respondOK(c, http.StatusOK, records)
}

// ArchiveExpense handles DELETE /api/v1/expenses/:id
func (h *Handlers) ArchiveExpense(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	if err := h.deps.Workflow.Archive(c.Request.Context(), id, currentUser(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "archived": true})
}

// ListExpenses handles GET /api/v1/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.CodeValidation, err, "invalid query parameters"))
		return
	}

	statuses, err := parseStatuses(q.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	limit, offset := q.page()
	filter := entity.ExpenseFilter{
		Statuses:    statuses,
		SubmitterID: strings.TrimSpace(q.SubmitterID),
		Limit:       limit,
		Offset:      offset,
	}
	if q.SiteID > 0 {
		site := q.SiteID
		filter.SiteID = &site
	}

	list, err := h.deps.Workflow.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*entity.Expense{}
	}
	respondOK(c, http.StatusOK, list)
}

// PendingApprovals handles GET /api/v1/expenses/pending-approvals
func (h *Handlers) PendingApprovals(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.CodeValidation, err, "invalid query parameters"))
		return
	}

	limit, offset := q.page()
	list, err := h.deps.Workflow.PendingApprovals(c.Request.Context(), currentUser(c), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*entity.Expense{}
	}
	respondOK(c, http.StatusOK, list)
}

// ApproveExpense handles POST /api/v1/expenses/:id/approve
func (h *Handlers) ApproveExpense(c *gin.Context) {
	in, ok := h.decisionInput(c)
	if !ok {
		return
	}

	exp, err := h.deps.Workflow.Approve(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// RejectExpense handles POST /api/v1/expenses/:id/reject
func (h *Handlers) RejectExpense(c *gin.Context) {
	in, ok := h.decisionInput(c)
	if !ok {
		return
	}
	if in.ModifiedAmount != nil {
		respondError(c, h.logger, apperr.Validation("modifiedAmount is not allowed when rejecting"))
		return
	}

	exp, err := h.deps.Workflow.Reject(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// MarkReimbursed handles POST /api/v1/expenses/:id/reimburse
func (h *Handlers) MarkReimbursed(c *gin.Context) {
	id, req, ok := h.paymentInput(c)
	if !ok {
		return
	}

	exp, err := h.deps.Workflow.MarkReimbursed(c.Request.Context(), id, currentUser(c), req.Reference)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// MarkPaymentProcessed handles POST /api/v1/expenses/:id/payment
func (h *Handlers) MarkPaymentProcessed(c *gin.Context) {
	id, req, ok := h.paymentInput(c)
	if !ok {
		return
	}

	exp, err := h.deps.Workflow.MarkPaymentProcessed(c.Request.Context(), id, currentUser(c), req.Reference)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, exp)
}

// GetPolicy handles GET /api/v1/sites/:id/policy
func (h *Handlers) GetPolicy(c *gin.Context) {
	siteID, ok := h.siteID(c)
	if !ok {
		return
	}

	p, err := h.deps.Policies.Get(c.Request.Context(), siteID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

// UpdatePolicy handles PUT /api/v1/sites/:id/policy
func (h *Handlers) UpdatePolicy(c *gin.Context) {
	siteID, ok := h.siteID(c)
	if !ok {
		return
	}

	user := currentUser(c)
	if user.Role != domainwf.RoleAdmin && user.Role != domainwf.RoleFinance {
		respondError(c, h.logger, apperr.PermissionDenied("role %s cannot change site policy", user.Role))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPolicyBody)
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.CodeValidation, err, "unreadable policy document"))
		return
	}

	p, err := policy.ParsePolicyJSON(body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.deps.Policies.Update(c.Request.Context(), siteID, p); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Site policy replaced", "site_id", siteID, "user_id", user.ID)

	effective, err := h.deps.Policies.Get(c.Request.Context(), siteID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, effective)
}

// GetBudget handles GET /api/v1/sites/:id/budget
func (h *Handlers) GetBudget(c *gin.Context) {
	siteID, ok := h.siteID(c)
	if !ok {
		return
	}

	report, err := h.deps.Budgets.Utilization(c.Request.Context(), siteID, h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

func (h *Handlers) expenseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, h.logger, apperr.New(apperr.CodeInvalidID, "invalid expense id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// siteID parses the site id and checks the caller may see the site
func (h *Handlers) siteID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, h.logger, apperr.New(apperr.CodeInvalidID, "invalid site id %q", c.Param("id")))
		return 0, false
	}
	if !access.For(currentUser(c)).CoversSite(id) {
		respondError(c, h.logger, apperr.PermissionDenied("site %d is outside your scope", id))
		return 0, false
	}
	return id, true
}

func (h *Handlers) decisionInput(c *gin.Context) (workflow.DecisionInput, bool) {
	id, ok := h.expenseID(c)
	if !ok {
		return workflow.DecisionInput{}, false
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Wrap(apperr.CodeValidation, err, "invalid request body"))
		return workflow.DecisionInput{}, false
	}

	user := currentUser(c)
	if req.ApproverID != "" && req.ApproverID != user.ID {
		respondError(c, h.logger, apperr.PermissionDenied("approverId does not match the authenticated user"))
		return workflow.DecisionInput{}, false
	}

	return workflow.DecisionInput{
		ExpenseID:          id,
		Actor:              user,
		Level:              domainwf.Level(req.Level),
		Comment:            utils.SanitizeString(req.Comments),
		ModifiedAmount:     req.ModifiedAmount,
		ModificationReason: utils.SanitizeString(req.ModificationReason),
	}, true
}

func (h *Handlers) paymentInput(c *gin.Context) (int64, PaymentRequest, bool) {
	id, ok := h.expenseID(c)
	if !ok {
		return 0, PaymentRequest{}, false
	}

	var req PaymentRequest
	// the body is optional
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, h.logger, apperr.Wrap(apperr.CodeValidation, err, "invalid request body"))
			return 0, PaymentRequest{}, false
		}
	}
	req.Reference = utils.SanitizeString(req.Reference)
	return id, req, true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, apperr.Validation("expenseDate must be YYYY-MM-DD")
}

func parseStatuses(raw string) ([]domainwf.State, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []domainwf.State
	for _, part := range strings.Split(raw, ",") {
		s := domainwf.State(strings.TrimSpace(part))
		if !s.IsValid() {
			return nil, apperr.Validation("unknown status %q", part)
		}
		out = append(out, s)
	}
	return out, nil
}
