package services

import (
	"context"
	"errors"

	"bank-ledger/internal/cache"
	"bank-ledger/internal/models"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/utils"
	"bank-ledger/internal/worker"
)

// RecordCache stores encoded account records in front of the ledger files.
// The repository fills and invalidates it under the record lock; the service
// only reads from it.
type RecordCache interface {
	repository.RecordCache
	GetRecord(ctx context.Context, accountID int64) ([]byte, error)
}

// JournalWriter receives a copy of every accepted transaction.
type JournalWriter interface {
	Append(ctx context.Context, entry models.JournalEntry) error
}

// LedgerService runs statements and transactions against the account files.
type LedgerService struct {
	accountRepo *repository.AccountRepository
	cache       RecordCache
	journal     JournalWriter
	journalPool *worker.WorkerPool
	retryOn     func(error) bool
}

// NewLedgerService serves statements and transactions from accountRepo.
// Cache and journal are attached afterwards with SetCache and SetJournal.
func NewLedgerService(accountRepo *repository.AccountRepository) *LedgerService {
	return &LedgerService{accountRepo: accountRepo}
}

// SetCache enables the record cache for statements.
func (s *LedgerService) SetCache(c RecordCache) {
	s.cache = c
	s.accountRepo.SetRecordCache(c)
	utils.LogSuccess("LedgerService", "record cache attached")
}

// SetJournal mirrors accepted transactions to journal through pool.
// retryOn decides which append failures the pool may retry.
func (s *LedgerService) SetJournal(journal JournalWriter, pool *worker.WorkerPool, retryOn func(error) bool) {
	s.journal = journal
	s.journalPool = pool
	s.retryOn = retryOn
	utils.LogSuccess("LedgerService", "journal attached")
}

// Statement returns the current state of the account.
func (s *LedgerService) Statement(ctx context.Context, accountID int64) (*models.Account, error) {
	if account := s.cachedAccount(ctx, accountID); account != nil {
		return account, nil
	}

	return s.accountRepo.GetByID(ctx, accountID)
}

// Transact applies one transaction to the account and returns the committed state.
func (s *LedgerService) Transact(ctx context.Context, accountID int64, tx models.Transaction) (*models.Account, error) {
	account, err := s.accountRepo.ApplyTransaction(ctx, accountID, tx)
	if err != nil {
		if errors.Is(err, repository.ErrLimitExceeded) {
			utils.LogWarning("LedgerService", "account %d: debit of %d rejected, limit exceeded", accountID, tx.Amount)
		}
		return nil, err
	}

	s.journalAsync(account)
	return account, nil
}

func (s *LedgerService) cachedAccount(ctx context.Context, accountID int64) *models.Account {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.GetRecord(ctx, accountID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			utils.LogError("LedgerService", "cache read failed", err)
		}
		return nil
	}

	account, err := repository.DecodeAccount(data)
	if err != nil || account.ID != accountID {
		utils.LogWarning("LedgerService", "account %d: discarding unreadable cache entry", accountID)
		return nil
	}
	return account
}
