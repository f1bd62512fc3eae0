package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bank-ledger/internal/models"
	"bank-ledger/internal/utils"
	"bank-ledger/internal/worker"
)

const journalAppendTimeout = 5 * time.Second

// journalAsync hands the newest transaction of account to the journal pool.
// If the queue is full the entry is written inline.
func (s *LedgerService) journalAsync(account *models.Account) {
	if s.journal == nil {
		return
	}

	entry, ok := newestEntry(account)
	if !ok {
		return
	}

	task := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), journalAppendTimeout)
		defer cancel()
		return s.journal.Append(ctx, entry)
	}

	if s.journalPool != nil {
		err := s.journalPool.Submit(worker.Job{
			ID:      "journal-" + entry.ID,
			Task:    task,
			RetryOn: s.retryOn,
		})
		if err == nil {
			return
		}
		utils.LogWarning("LedgerService", "journal queue unavailable (%v), writing entry %s inline", err, entry.ID)
	}

	if err := task(); err != nil {
		utils.LogError("LedgerService", "journal append failed", err)
	}
}

func newestEntry(account *models.Account) (models.JournalEntry, bool) {
	for tx := range account.RecentHistory() {
		return models.JournalEntry{
			ID:           uuid.New().String(),
			AccountID:    account.ID,
			Amount:       tx.Amount,
			Kind:         string(tx.Kind),
			Description:  tx.Description,
			OccurredAt:   tx.OccurredAt,
			BalanceAfter: account.Balance,
		}, true
	}
	return models.JournalEntry{}, false
}
