package models

import "encoding/json"

const (
	KindCredit byte = 'c'
	KindDebit  byte = 'd'
)

// TimestampLayout is the layout of OccurredAt and of statement dates.
// It always fits the fixed-width timestamp field of the record.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

type Transaction struct {
	Amount      int64
	Kind        byte
	Description string
	OccurredAt  string
}

// TransactionRequest is the body of POST /clientes/{id}/transacoes.
// Valor stays raw so that quoted, signed or fractional numbers can be refused.
type TransactionRequest struct {
	Valor     json.RawMessage `json:"valor"`
	Tipo      string          `json:"tipo"`
	Descricao string          `json:"descricao"`
}

// TransactionResponse is one entry of ultimas_transacoes.
type TransactionResponse struct {
	Amount      int64  `json:"valor"`
	Kind        string `json:"tipo"`
	Description string `json:"descricao"`
	OccurredAt  string `json:"realizada_em"`
}

// BalanceResponse is the body returned after an accepted transaction.
type BalanceResponse struct {
	Limit   int64 `json:"limite"`
	Balance int64 `json:"saldo"`
}

// JournalEntry mirrors one accepted transaction outside the ledger files.
type JournalEntry struct {
	ID           string `json:"id"`
	AccountID    int64  `json:"account_id"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	OccurredAt   string `json:"occurred_at"`
	BalanceAfter int64  `json:"balance_after"`
}

func NewTransactionResponse(tx Transaction) TransactionResponse {
	return TransactionResponse{
		Amount:      tx.Amount,
		Kind:        string(tx.Kind),
		Description: tx.Description,
		OccurredAt:  tx.OccurredAt,
	}
}
