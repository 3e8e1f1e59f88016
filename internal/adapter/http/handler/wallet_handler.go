package handler

import (
	"math"

	"freight-commission-ledger/internal/adapter/http/dto"
	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultPageSize = 20

// WalletHandler handles the caller's own wallet.
type WalletHandler struct {
	ledger ports.CommissionLedger
	scale  int32
}

// NewWalletHandler creates a new WalletHandler. scale is the currency's
// minor-unit count used to render amounts.
func NewWalletHandler(ledger ports.CommissionLedger, scale int32) *WalletHandler {
	return &WalletHandler{ledger: ledger, scale: scale}
}

// GetWallet handles GET /api/v1/wallets/me.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	accountID, ok := mustAccount(c)
	if !ok {
		return
	}

	snap, err := h.ledger.GetWalletSnapshot(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToWalletResponse(snap, h.scale))
}

// ListTransactions handles GET /api/v1/wallets/me/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	accountID, ok := mustAccount(c)
	if !ok {
		return
	}

	var q dto.ListTransactionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}

	params := ports.JournalListParams{
		AccountID: accountID,
		Limit:     q.PageSize,
		Offset:    (q.Page - 1) * q.PageSize,
	}
	if q.Type != "" {
		t := domain.EntryType(q.Type)
		params.Type = &t
	}

	entries, total, err := h.ledger.History(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.JournalEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.ToJournalEntryResponse(e, h.scale))
	}

	response.OK(c, dto.JournalListResponse{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	})
}

// Deposit handles POST /api/v1/operator/wallets/:id/deposit. The router
// admits operators only; :id is the account being funded.
func (h *WalletHandler) Deposit(c *gin.Context) {
	if _, ok := mustAccount(c); !ok {
		return
	}
	accountID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}
	reference := uuid.Nil
	if req.Reference != "" {
		if reference, err = uuid.Parse(req.Reference); err != nil {
			response.Error(c, apperror.Validation("reference must be a UUID"))
			return
		}
	}

	entry, err := h.ledger.Deposit(c.Request.Context(), ports.DepositRequest{
		AccountID: accountID,
		Amount:    amount,
		Reference: reference,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToJournalEntryResponse(*entry, h.scale))
}
