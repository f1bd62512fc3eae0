package repository

import (
	"errors"
	"fmt"

	"bank-ledger/internal/models"
)

var (
	ErrLimitExceeded          = errors.New("debit exceeds account limit")
	ErrInvalidTransactionKind = errors.New("invalid transaction kind")
	ErrInvalidAmount          = errors.New("invalid transaction amount")
)

// applyTransaction moves the balance and records tx in the history.
// On error account is not modified.
func applyTransaction(account *models.Account, tx models.Transaction) error {
	if tx.Amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}

	var candidate int64
	switch tx.Kind {
	case models.KindDebit:
		candidate = account.Balance - tx.Amount
		if candidate > account.Balance || candidate < -account.Limit {
			return ErrLimitExceeded
		}
	case models.KindCredit:
		candidate = account.Balance + tx.Amount
		if candidate < account.Balance {
			return fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransactionKind, tx.Kind)
	}

	account.Balance = candidate
	account.Record(tx)
	return nil
}
