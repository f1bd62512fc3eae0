package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"bank-ledger/internal/models"
	"bank-ledger/internal/utils"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

const DefaultFileTemplate = "account-%d.bin"

// RecordCache receives encoded records read under a shared lock and is
// invalidated under the exclusive lock of every commit. A fill can therefore
// never land after the invalidation of a newer commit.
type RecordCache interface {
	SetRecord(ctx context.Context, accountID int64, record []byte) error
	Invalidate(ctx context.Context, accountIDs ...int64) error
}

// AccountRepository keeps one fixed-size record file per account under root.
// Every access holds an flock on that file for its whole duration.
type AccountRepository struct {
	root     string
	template string
	sync     bool
	now      func() time.Time
	cache    RecordCache
}

// NewAccountRepository stores records under root, naming each file by
// template with the account id. An empty template means DefaultFileTemplate.
func NewAccountRepository(root, template string) *AccountRepository {
	if template == "" {
		template = DefaultFileTemplate
	}
	return &AccountRepository{
		root:     root,
		template: template,
		now:      time.Now,
	}
}

// SetSyncWrites makes every committed record fsync before the lock is released.
func (r *AccountRepository) SetSyncWrites(sync bool) {
	r.sync = sync
}

// SetRecordCache attaches c. Cache failures are logged and never fail the
// ledger operation.
func (r *AccountRepository) SetRecordCache(c RecordCache) {
	r.cache = c
}

// SetClock replaces the clock used to stamp transactions.
func (r *AccountRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *AccountRepository) path(id int64) string {
	return filepath.Join(r.root, fmt.Sprintf(r.template, id))
}

// Exists reports whether a record file is present for id.
func (r *AccountRepository) Exists(id int64) (bool, error) {
	_, err := os.Stat(r.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Initialize creates or overwrites the record for id with a zero balance and
// empty history.
func (r *AccountRepository) Initialize(ctx context.Context, id, limit int64) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create ledger directory: %v", ErrStoreUnavailable, err)
	}

	account := models.NewAccount(id, limit)
	data, err := EncodeAccount(account)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(r.path(id), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create record: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()

	if err := lockFile(f, unix.LOCK_EX); err != nil {
		return nil, err
	}
	defer unlockFile(f)

	if err := r.writeRecord(f, data); err != nil {
		return nil, err
	}

	utils.LogDebug("AccountRepo", "account %d initialized with limit %d", id, limit)
	return account, nil
}

// GetByID loads the account under a shared lock.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := r.open(id, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := lockFile(f, unix.LOCK_SH); err != nil {
		return nil, err
	}
	defer unlockFile(f)

	account, data, err := r.readRecord(f, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetRecord(ctx, id, data); err != nil {
			utils.LogError("AccountRepo", fmt.Sprintf("account %d: cache fill failed", id), err)
		}
	}
	return account, nil
}

// ApplyTransaction validates tx against the current record and commits it.
// The exclusive lock covers decode, validation, encode and write; a rejected
// transaction leaves the file as it was.
func (r *AccountRepository) ApplyTransaction(ctx context.Context, id int64, tx models.Transaction) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := r.open(id, os.O_RDWR)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := lockFile(f, unix.LOCK_EX); err != nil {
		return nil, err
	}
	defer unlockFile(f)

	account, _, err := r.readRecord(f, id)
	if err != nil {
		return nil, err
	}

	tx.OccurredAt = r.now().UTC().Format(models.TimestampLayout)
	if err := applyTransaction(account, tx); err != nil {
		return nil, err
	}

	data, err := EncodeAccount(account)
	if err != nil {
		return nil, err
	}
	if err := r.writeRecord(f, data); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, id); err != nil {
			utils.LogError("AccountRepo", fmt.Sprintf("account %d: cache invalidation failed", id), err)
		}
	}
	return account, nil
}

func (r *AccountRepository) open(id int64, flag int) (*os.File, error) {
	f, err := os.OpenFile(r.path(id), flag, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: open record: %v", ErrStoreUnavailable, err)
	}
	return f, nil
}

// readRecord returns the decoded account and the raw record bytes.
func (r *AccountRepository) readRecord(f *os.File, id int64) (*models.Account, []byte, error) {
	buf := make([]byte, RecordSize+1)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: read record: %v", ErrStoreUnavailable, err)
	}

	account, err := DecodeAccount(buf[:n])
	if err != nil {
		return nil, nil, err
	}
	if account.ID != id {
		return nil, nil, fmt.Errorf("%w: record holds account %d, want %d", ErrCorruptRecord, account.ID, id)
	}
	return account, buf[:n], nil
}

func (r *AccountRepository) writeRecord(f *os.File, data []byte) error {
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("%w: write record: %v", ErrStoreUnavailable, err)
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("%w: truncate record: %v", ErrStoreUnavailable, err)
	}
	if r.sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("%w: sync record: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}
