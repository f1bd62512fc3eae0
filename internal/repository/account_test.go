package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/models"
)

func newTestRepository(t *testing.T) *AccountRepository {
	t.Helper()
	return NewAccountRepository(t.TempDir(), DefaultFileTemplate)
}

func credit(amount int64, description string) models.Transaction {
	return models.Transaction{Amount: amount, Kind: models.KindCredit, Description: description}
}

func debit(amount int64, description string) models.Transaction {
	return models.Transaction{Amount: amount, Kind: models.KindDebit, Description: description}
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("InitializeAndRead", func(t *testing.T) {
		repo := newTestRepository(t)

		_, err := repo.Initialize(ctx, 1, 100000)
		require.NoError(t, err)

		account, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.NewAccount(1, 100000), account)

		again, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, account, again)

		info, err := os.Stat(filepath.Join(repo.root, "account-1.bin"))
		require.NoError(t, err)
		assert.EqualValues(t, RecordSize, info.Size())
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newTestRepository(t)

		_, err := repo.GetByID(ctx, 42)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		_, err = repo.ApplyTransaction(ctx, 42, credit(1, "x"))
		assert.ErrorIs(t, err, ErrAccountNotFound)

		exists, err := repo.Exists(42)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("LimitScenario", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.Initialize(ctx, 1, 1000)
		require.NoError(t, err)

		account, err := repo.ApplyTransaction(ctx, 1, debit(1000, "all"))
		require.NoError(t, err)
		assert.EqualValues(t, -1000, account.Balance)

		_, err = repo.ApplyTransaction(ctx, 1, debit(1, "one more"))
		assert.ErrorIs(t, err, ErrLimitExceeded)

		account, err = repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.EqualValues(t, -1000, account.Balance)
		assert.EqualValues(t, 1, account.TransactionCount)

		account, err = repo.ApplyTransaction(ctx, 1, credit(500, "back"))
		require.NoError(t, err)
		assert.EqualValues(t, -500, account.Balance)
	})

	t.Run("RejectionIsNoop", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.Initialize(ctx, 1, 10)
		require.NoError(t, err)
		_, err = repo.ApplyTransaction(ctx, 1, credit(5, "seed"))
		require.NoError(t, err)

		before, err := os.ReadFile(repo.path(1))
		require.NoError(t, err)

		_, err = repo.ApplyTransaction(ctx, 1, debit(16, "too much"))
		assert.ErrorIs(t, err, ErrLimitExceeded)

		_, err = repo.ApplyTransaction(ctx, 1, models.Transaction{Amount: 1, Kind: 'x', Description: "bad"})
		assert.ErrorIs(t, err, ErrInvalidTransactionKind)

		after, err := os.ReadFile(repo.path(1))
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("HistoryEviction", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.Initialize(ctx, 1, 0)
		require.NoError(t, err)

		for i := 1; i <= 11; i++ {
			_, err := repo.ApplyTransaction(ctx, 1, credit(1, fmt.Sprintf("#%d", i)))
			require.NoError(t, err)
		}

		account, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.EqualValues(t, models.HistoryCapacity, account.TransactionCount)
		assert.EqualValues(t, 11, account.Balance)

		recent := account.RecentTransactions()
		require.Len(t, recent, models.HistoryCapacity)
		for i, tx := range recent {
			assert.Equal(t, fmt.Sprintf("#%d", 11-i), tx.Description)
		}
	})

	t.Run("StampsTransactions", func(t *testing.T) {
		repo := newTestRepository(t)
		repo.SetClock(func() time.Time {
			return time.Date(2024, 2, 1, 12, 30, 0, 0, time.FixedZone("BRT", -3*3600))
		})
		_, err := repo.Initialize(ctx, 1, 0)
		require.NoError(t, err)

		tx := credit(10, "stamp")
		tx.OccurredAt = "client supplied"
		account, err := repo.ApplyTransaction(ctx, 1, tx)
		require.NoError(t, err)
		assert.Equal(t, "2024-02-01T15:30:00.000000Z", account.History[0].OccurredAt)
	})

	t.Run("CorruptRecord", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.Initialize(ctx, 1, 0)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(repo.path(1), []byte("short"), 0o644))

		_, err = repo.GetByID(ctx, 1)
		assert.ErrorIs(t, err, ErrCorruptRecord)

		_, err = repo.ApplyTransaction(ctx, 1, credit(1, "x"))
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})

	t.Run("RecordForAnotherAccount", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.Initialize(ctx, 1, 0)
		require.NoError(t, err)
		require.NoError(t, os.Rename(repo.path(1), repo.path(2)))

		_, err = repo.GetByID(ctx, 2)
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})

	t.Run("Reinitialize", func(t *testing.T) {
		repo := newTestRepository(t)
		_, err := repo.Initialize(ctx, 1, 100)
		require.NoError(t, err)
		_, err = repo.ApplyTransaction(ctx, 1, credit(7, "x"))
		require.NoError(t, err)

		_, err = repo.Initialize(ctx, 1, 200)
		require.NoError(t, err)

		account, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.NewAccount(1, 200), account)
	})
}

// Two repositories over one directory stand in for two server processes
// sharing a ledger; every debit must land exactly once.
func TestAccountRepository_ConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repos := []*AccountRepository{
		NewAccountRepository(dir, DefaultFileTemplate),
		NewAccountRepository(dir, DefaultFileTemplate),
	}

	const (
		goroutines = 20
		perRoutine = 25
		limit      = 400
	)

	_, err := repos[0].Initialize(ctx, 3, limit)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			repo := repos[g%len(repos)]
			for i := 0; i < perRoutine; i++ {
				_, err := repo.ApplyTransaction(ctx, 3, debit(1, "teste"))
				mu.Lock()
				if err == nil {
					accepted++
				} else {
					assert.ErrorIs(t, err, ErrLimitExceeded)
					rejected++
				}
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()

	account, err := repos[1].GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, limit, accepted)
	assert.Equal(t, goroutines*perRoutine-limit, rejected)
	assert.EqualValues(t, -limit, account.Balance)
	assert.EqualValues(t, models.HistoryCapacity, account.TransactionCount)
}
