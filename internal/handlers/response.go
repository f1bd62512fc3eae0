package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fasthttp"

	"bank-ledger/internal/models"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/utils"
)

// Fixed client-facing messages; internal error text never reaches the wire.
var statusMessages = map[int]string{
	fasthttp.StatusBadRequest:          "Bad Request",
	fasthttp.StatusNotFound:            "User Not Found",
	fasthttp.StatusMethodNotAllowed:    "Method not allowed",
	fasthttp.StatusUnprocessableEntity: "Unprocessable Entity",
	fasthttp.StatusInternalServerError: "Internal Server Error",
}

// StatusFor maps a decoder, service or store error to its single wire status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return fasthttp.StatusOK
	case errors.Is(err, ErrUnknownRoute),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrCorruptRecord):
		return fasthttp.StatusNotFound
	case errors.Is(err, ErrUnprocessable),
		errors.Is(err, repository.ErrLimitExceeded),
		errors.Is(err, repository.ErrInvalidTransactionKind),
		errors.Is(err, repository.ErrInvalidAmount),
		errors.Is(err, repository.ErrBufferTooSmall),
		errors.Is(err, repository.ErrInvalidText):
		return fasthttp.StatusUnprocessableEntity
	default:
		return fasthttp.StatusInternalServerError
	}
}

// RenderStatement builds the GET body. statementDate is the server clock at render time.
func RenderStatement(account *models.Account, statementDate time.Time) models.StatementResponse {
	transactions := make([]models.TransactionResponse, 0, models.HistoryCapacity)
	for tx := range account.RecentHistory() {
		transactions = append(transactions, models.NewTransactionResponse(tx))
	}

	return models.StatementResponse{
		Balance: models.StatementBalance{
			Total:         account.Balance,
			StatementDate: statementDate.UTC().Format(models.TimestampLayout),
			Limit:         account.Limit,
		},
		RecentTransactions: transactions,
	}
}

// RenderBalance is the body of an accepted transaction.
func RenderBalance(account *models.Account) models.BalanceResponse {
	return models.BalanceResponse{Limit: account.Limit, Balance: account.Balance}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		utils.LogError("Handlers", "response encoding failed", err)
		writeStatus(ctx, fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// writeStatus answers with the fixed message body for status.
func writeStatus(ctx *fasthttp.RequestCtx, status int) {
	message, ok := statusMessages[status]
	if !ok {
		message = fasthttp.StatusMessage(status)
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]string{"message": message})
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	writeStatus(ctx, StatusFor(err))
}

// BadRequest answers a request that could not be classified at all.
func BadRequest(ctx *fasthttp.RequestCtx) {
	writeStatus(ctx, fasthttp.StatusBadRequest)
}
