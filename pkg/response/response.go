package response

import (
	"errors"
	"net/http"
	"time"

	"freight-commission-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	Count     *int        `json:"count,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, success(c, data, nil))
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, success(c, data, nil))
}

// List sends a 200 response carrying a slice and its length.
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	c.JSON(http.StatusOK, success(c, items, &n))
}

// Error sends an error response. *apperror.AppError values keep their code
// and status; anything else becomes a 500 without leaking the cause.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.InternalError(err)
	}

	// Captured for the request logger.
	_ = c.Error(err)

	c.JSON(appErr.HTTPStatus, ErrorResponse{
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

func success(c *gin.Context, data interface{}, count *int) SuccessResponse {
	return SuccessResponse{
		Data:      data,
		Count:     count,
		RequestID: getRequestID(c),
		Timestamp: now(),
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
