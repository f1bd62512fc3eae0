package bootstrap

import (
	"context"
	"fmt"

	"bank-ledger/internal/config"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/utils"
)

// Seed provisions the configured accounts. With reset every record is
// rewritten to a zero balance; otherwise only missing records are created and
// existing ledgers are left untouched. It returns the number of records written.
func Seed(ctx context.Context, repo *repository.AccountRepository, seeds []config.AccountSeed, reset bool) (int, error) {
	written := 0
	for _, seed := range seeds {
		if !reset {
			exists, err := repo.Exists(seed.ID)
			if err != nil {
				return written, fmt.Errorf("check account %d: %w", seed.ID, err)
			}
			if exists {
				continue
			}
		}

		if _, err := repo.Initialize(ctx, seed.ID, seed.Limit); err != nil {
			return written, fmt.Errorf("initialize account %d: %w", seed.ID, err)
		}
		written++
	}

	utils.LogSuccess("Bootstrap", "%d of %d accounts initialized (reset=%t)", written, len(seeds), reset)
	return written, nil
}
