package models

import "iter"

// HistoryCapacity is the size of the per-account transaction ring buffer.
const HistoryCapacity = 10

// Account is the persisted ledger record. History is kept in physical slot
// order; OldestIndex points at the logically oldest entry once the buffer is full.
type Account struct {
	ID               int64
	Limit            int64
	Balance          int64
	TransactionCount int32
	OldestIndex      int32
	History          [HistoryCapacity]Transaction
}

// NewAccount returns a freshly provisioned account with zero balance and empty history.
func NewAccount(id, limit int64) *Account {
	return &Account{ID: id, Limit: limit}
}

// Record inserts tx into the ring buffer, evicting the oldest entry when full.
func (a *Account) Record(tx Transaction) {
	if a.TransactionCount < HistoryCapacity {
		a.History[a.TransactionCount] = tx
		a.TransactionCount++
		return
	}

	a.History[a.OldestIndex] = tx
	a.OldestIndex = (a.OldestIndex + 1) % HistoryCapacity
}

// RecentHistory yields the retained transactions, most recent first.
// The sequence works on a snapshot taken at call time and can be ranged over
// any number of times.
func (a *Account) RecentHistory() iter.Seq[Transaction] {
	history := a.History
	count := int(a.TransactionCount)
	if count > HistoryCapacity {
		count = HistoryCapacity
	}

	newest := count - 1
	if count == HistoryCapacity {
		newest = (int(a.OldestIndex) + HistoryCapacity - 1) % HistoryCapacity
	}

	return func(yield func(Transaction) bool) {
		for i := 0; i < count; i++ {
			slot := (newest - i + HistoryCapacity) % HistoryCapacity
			if !yield(history[slot]) {
				return
			}
		}
	}
}

// RecentTransactions collects RecentHistory into a slice.
func (a *Account) RecentTransactions() []Transaction {
	transactions := make([]Transaction, 0, HistoryCapacity)
	for tx := range a.RecentHistory() {
		transactions = append(transactions, tx)
	}
	return transactions
}

type StatementBalance struct {
	Total         int64  `json:"total"`
	StatementDate string `json:"data_extrato"`
	Limit         int64  `json:"limite"`
}

// StatementResponse is the body of GET /clientes/{id}/extrato.
type StatementResponse struct {
	Balance            StatementBalance      `json:"saldo"`
	RecentTransactions []TransactionResponse `json:"ultimas_transacoes"`
}
