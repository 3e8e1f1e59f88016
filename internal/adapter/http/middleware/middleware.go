package middleware

import (
	"net/http"
	"strings"
	"time"

	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxAccountID = "account_id"
	CtxRole      = "role"
)

// AccountID returns the authenticated account set by JWTAuth.
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CtxAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// JWTAuth validates the bearer token and stores the account id on the context.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("rejected bearer token")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxAccountID, claims.AccountID)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless JWTAuth stored role for the caller.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxRole) != role {
			response.Error(c, apperror.ErrRoleRequired(role))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if id, ok := c.Get(response.RequestIDKey); ok {
			event = event.Interface("request_id", id)
		}
		if accountID, ok := AccountID(c); ok {
			event = event.Str("account_id", accountID.String())
		}
		if err := c.Errors.Last(); err != nil {
			event = event.Err(err.Err)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.New(apperror.CodeInternal, "Internal server error", http.StatusInternalServerError))
				c.Abort()
			}
		}()
		c.Next()
	}
}
