// Package http exposes the approval workflow over a JSON REST API.
// Handlers translate requests into application calls; errors are mapped to
// the wire format in one place (respondError).
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Mode:            gin.ReleaseMode,
	}
}

// Dependencies are the application services the handlers call
type Dependencies struct {
	Workflow workflow.ApprovalWorkflow
	Policies PolicyService
	Budgets  BudgetService
	Users    port.UserRepository
	Tokens   port.TokenVerifier
	// Health reports readiness of backing services; nil means always healthy
	Health func(ctx context.Context) error
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	router := gin.New()
	server := &Server{
		config: config,
		router: router,
		logger: logger,
	}

	router.Use(gin.Recovery(), requestID(), accessLog(logger))
	registerRoutes(router, NewHandlers(deps, logger), authenticate(deps.Tokens, deps.Users, logger))

	return server
}

func registerRoutes(router *gin.Engine, h *Handlers, auth gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/v1", auth)
	{
		expenses := api.Group("/expenses")
		expenses.GET("", h.ListExpenses)
		expenses.POST("/create", h.CreateExpense)
		expenses.GET("/pending-approvals", h.PendingApprovals)
		expenses.GET("/:id", h.GetExpense)
		expenses.GET("/:id/history", h.GetHistory)
		expenses.DELETE("/:id", h.ArchiveExpense)
		expenses.POST("/:id/submit", h.SubmitExpense)
		expenses.POST("/:id/start-review", h.StartReview)
		expenses.POST("/:id/approve", h.ApproveExpense)
		expenses.POST("/:id/reject", h.RejectExpense)
		expenses.POST("/:id/reimburse", h.MarkReimbursed)
		expenses.POST("/:id/payment", h.MarkPaymentProcessed)

		sites := api.Group("/sites")
		sites.GET("/:id/policy", h.GetPolicy)
		sites.PUT("/:id/policy", h.UpdatePolicy)
		sites.GET("/:id/budget", h.GetBudget)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
