package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes referenced outside this package.
const (
	CodeInsufficientFunds      = "PAY_001"
	CodeInvalidAmount          = "PAY_002"
	CodeDuplicateRequest       = "PAY_003"
	CodeNotFound               = "PAY_004"
	CodeInvalidStateTransition = "OFFER_001"
	CodeActorNotPermitted      = "OFFER_002"
	CodeAlreadyAssigned        = "SHIP_001"
	CodeShipmentNotOpen        = "SHIP_002"
	CodeWalletDisabled         = "WALLET_001"
	CodeInternal               = "SYS_001"
	CodeLockTimeout            = "SYS_002"
	CodeLedgerMismatch         = "SYS_003"
)

// ---- Ledger (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance to cover the commission hold", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicateRequest() *AppError {
	return New(CodeDuplicateRequest, "Duplicate request", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Offer life cycle (OFFER) ----

func ErrInvalidStateTransition(from, event string) *AppError {
	return New(CodeInvalidStateTransition,
		fmt.Sprintf("Cannot %s an offer that is %s", event, from), http.StatusConflict)
}

func ErrActorNotPermitted(event string) *AppError {
	return New(CodeActorNotPermitted, fmt.Sprintf("Not permitted to %s this offer", event), http.StatusForbidden)
}

func ErrOwnShipment() *AppError {
	return New(CodeActorNotPermitted, "Shipment owner cannot bid on their own shipment", http.StatusForbidden)
}

// ---- Shipments (SHIP) ----

func ErrAlreadyAssigned() *AppError {
	return New(CodeAlreadyAssigned, "Shipment already has an accepted offer", http.StatusConflict)
}

func ErrShipmentNotOpen() *AppError {
	return New(CodeShipmentNotOpen, "Shipment is not accepting offers", http.StatusConflict)
}

// ---- Wallets (WALLET) ----

func ErrWalletDisabled() *AppError {
	return New(CodeWalletDisabled, "Wallet is disabled", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrRoleRequired(role string) *AppError {
	return New("AUTH_004", fmt.Sprintf("The %s role is required", role), http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Request (REQ) ----

func ErrPayloadTooLarge() *AppError {
	return New("REQ_001", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap(CodeLockTimeout, "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrLedgerMismatch(err error) *AppError {
	return Wrap(CodeLedgerMismatch, "Wallet does not match its journal", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}
