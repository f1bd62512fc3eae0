package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"bank-ledger/internal/services"
	"bank-ledger/internal/utils"
)

const accountIDKey = "account_id"

// LedgerHandler serves the two ledger endpoints. Requests run to completion
// once started, so store calls use a background context rather than the
// connection's lifetime.
type LedgerHandler struct {
	service *services.LedgerService
	baseCtx context.Context
	now     func() time.Time
}

// NewLedgerHandler serves the ledger endpoints from service.
func NewLedgerHandler(service *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		baseCtx: context.Background(),
		now:     time.Now,
	}
}

// Statement handles GET /clientes/{id}/extrato.
func (h *LedgerHandler) Statement(ctx *fasthttp.RequestCtx) {
	accountID, ok := ctx.UserValue(accountIDKey).(int64)
	if !ok {
		writeStatus(ctx, fasthttp.StatusNotFound)
		return
	}

	account, err := h.service.Statement(h.baseCtx, accountID)
	if err != nil {
		h.logFailure("statement", accountID, err)
		writeError(ctx, err)
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, RenderStatement(account, h.now()))
}

// CreateTransaction handles POST /clientes/{id}/transacoes.
func (h *LedgerHandler) CreateTransaction(ctx *fasthttp.RequestCtx) {
	accountID, ok := ctx.UserValue(accountIDKey).(int64)
	if !ok {
		writeStatus(ctx, fasthttp.StatusNotFound)
		return
	}

	tx, err := DecodeTransactionRequest(ctx.PostBody())
	if err != nil {
		utils.LogDebug("LedgerHandler", "account %d: rejected body: %v", accountID, err)
		writeError(ctx, err)
		return
	}

	account, err := h.service.Transact(h.baseCtx, accountID, tx)
	if err != nil {
		h.logFailure("transaction", accountID, err)
		writeError(ctx, err)
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, RenderBalance(account))
}

func (h *LedgerHandler) logFailure(operation string, accountID int64, err error) {
	if StatusFor(err) >= fasthttp.StatusInternalServerError {
		utils.LogError("LedgerHandler", fmt.Sprintf("%s for account %d failed", operation, accountID), err)
		return
	}
	utils.LogDebug("LedgerHandler", "%s for account %d: %v", operation, accountID, err)
}
