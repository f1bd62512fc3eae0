package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"bank-ledger/internal/bootstrap"
	"bank-ledger/internal/cache"
	"bank-ledger/internal/config"
	"bank-ledger/internal/dispatcher"
	"bank-ledger/internal/handlers"
	"bank-ledger/internal/journal"
	"bank-ledger/internal/middleware"
	"bank-ledger/internal/ops"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/services"
	"bank-ledger/internal/utils"
	"bank-ledger/internal/worker"
)

func main() {
	if err := run(); err != nil {
		utils.LogError("Main", "service stopped with error", err)
		utils.SyncLogger()
		os.Exit(1)
	}
	utils.SyncLogger()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accountRepo := repository.NewAccountRepository(cfg.LedgerDir, cfg.LedgerFileTemplate)
	accountRepo.SetSyncWrites(cfg.LedgerSyncWrites)
	if _, err := bootstrap.Seed(ctx, accountRepo, cfg.Accounts, cfg.LedgerReset); err != nil {
		return err
	}

	ledgerService := services.NewLedgerService(accountRepo)

	var dbPool *pgxpool.Pool
	var journalRepo *journal.Repository
	var journalPool *worker.WorkerPool
	if cfg.DBURL != "" {
		dbPool, err = journal.Connect(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		defer dbPool.Close()

		if cfg.MigrationsEnabled {
			if err := journal.Migrate(dbPool); err != nil {
				return err
			}
		}

		journalRepo = journal.NewRepository(dbPool)
		journalPool = worker.NewWorkerPool("journal", cfg.JournalWorkers, cfg.JournalQueue, cfg.JournalMaxRetries)
		journalPool.Start()
		ledgerService.SetJournal(journalRepo, journalPool, journal.IsTransient)
	} else {
		utils.LogInfo("Main", "DB_URL not set; journal disabled")
	}

	if cfg.RedisAddr != "" {
		recordCache := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
		defer recordCache.Close()

		if err := recordCache.Ping(ctx); err != nil {
			utils.LogWarning("Main", "redis at %s unreachable, statements read from disk: %v", cfg.RedisAddr, err)
		} else {
			ledgerService.SetCache(recordCache)
		}
	}

	ledgerHandler := handlers.NewLedgerHandler(ledgerService)

	dispatchPool := worker.NewWorkerPool("dispatch", cfg.DispatchWorkers, cfg.DispatchQueue, 0)
	dispatchPool.Start()

	ledgerDispatcher := dispatcher.New(
		dispatchPool,
		middleware.RequestLogger(ledgerHandler.Router()),
		middleware.RequestLogger(handlers.BadRequest),
		cfg.MaxRequestSize,
		cfg.MaxConns,
	)

	pools := []*worker.WorkerPool{dispatchPool}
	if journalPool != nil {
		pools = append(pools, journalPool)
	}
	opsServer := ops.NewServer(cfg.OpsAddr, ledgerDispatcher.GetStats, pools...)
	if journalRepo != nil {
		opsServer.SetJournal(journalRepo)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ledgerDispatcher.ListenAndServe(cfg.ListenAddr)
	})
	g.Go(func() error {
		return opsServer.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.LogInfo("Main", "shutting down")
		return shutdown(cfg.ShutdownTimeout, ledgerDispatcher, opsServer, dispatchPool, journalPool)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	utils.LogSuccess("Main", "service stopped")
	return nil
}

// shutdown stops intake first, then drains the request pool before the journal
// pool so that journal jobs queued by the last requests still run.
func shutdown(timeout time.Duration, d *dispatcher.Dispatcher, opsServer *ops.Server, dispatchPool, journalPool *worker.WorkerPool) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := d.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := dispatchPool.Shutdown(remaining(ctx)); err != nil {
		errs = append(errs, err)
	}
	if journalPool != nil {
		if err := journalPool.Shutdown(remaining(ctx)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return max(time.Until(deadline), time.Millisecond)
}
