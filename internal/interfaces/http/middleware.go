package http

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	headerRequestID = "X-Request-ID"
	ctxKeyRequestID = "request_id"
	ctxKeyUser      = "user"
)

// requestID propagates or assigns a correlation id
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog logs one line per request
func accessLog(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		kv := []interface{}{
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxKeyRequestID),
		}
		if u := currentUser(c); u != nil {
			kv = append(kv, "user_id", u.ID)
		}
		logger.Info("HTTP request", kv...)
	}
}

// authenticate resolves the bearer token to an active user
func authenticate(tokens port.TokenVerifier, users port.UserRepository, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(c, logger, apperr.New(apperr.CodeAuthRequired, "missing bearer token"))
			c.Abort()
			return
		}

		userID, err := tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			respondError(c, logger, apperr.Wrap(apperr.CodeAuthRequired, err, "invalid token"))
			c.Abort()
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, logger, err)
			c.Abort()
			return
		}
		if user == nil || !user.IsActive {
			respondError(c, logger, apperr.New(apperr.CodeAuthRequired, "unknown or inactive user"))
			c.Abort()
			return
		}

		c.Set(ctxKeyUser, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *entity.User {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil
	}
	u, _ := v.(*entity.User)
	return u
}
