package handler

import (
	"errors"
	"net/http"

	"freight-commission-ledger/internal/adapter/http/middleware"
	"freight-commission-ledger/pkg/apperror"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// mustAccount writes a 401 and returns false when JWTAuth did not run.
func mustAccount(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the :id path parameter as a UUID.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// bindError maps a request binding failure to its API error.
func bindError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperror.ErrPayloadTooLarge()
	}
	return apperror.Validation(err.Error())
}
