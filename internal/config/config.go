package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultLimits are the credit limits of the accounts provisioned on first run,
// assigned to ids 1..n in order.
var DefaultLimits = []int64{100000, 80000, 1000000, 10000000, 500000}

// AccountSeed is one account created at startup.
type AccountSeed struct {
	ID    int64
	Limit int64
}

// Config is the service configuration, read from the environment.
type Config struct {
	ListenAddr string
	OpsAddr    string

	LedgerDir          string
	LedgerFileTemplate string
	LedgerReset        bool
	LedgerSyncWrites   bool
	Accounts           []AccountSeed

	MaxRequestSize  int
	MaxConns        int
	DispatchWorkers int
	DispatchQueue   int

	DBURL             string
	MigrationsEnabled bool
	RedisAddr         string
	CacheTTL          time.Duration

	JournalWorkers    int
	JournalQueue      int
	JournalMaxRetries int

	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var p parser

	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":9999"),
		OpsAddr:    getEnv("OPS_ADDR", ":8081"),

		LedgerDir:          getEnv("LEDGER_DIR", "data"),
		LedgerFileTemplate: getEnv("LEDGER_FILE_TEMPLATE", "account-%d.bin"),
		LedgerReset:        p.bool("LEDGER_RESET", false),
		LedgerSyncWrites:   p.bool("LEDGER_SYNC_WRITES", false),

		MaxRequestSize:  p.int("MAX_REQUEST_SIZE", 4096),
		MaxConns:        p.int("MAX_CONNS", 1024),
		DispatchWorkers: p.int("DISPATCH_WORKERS", 1),
		DispatchQueue:   p.int("DISPATCH_QUEUE", 1024),

		DBURL:             getEnv("DB_URL", ""),
		MigrationsEnabled: p.bool("MIGRATIONS_ENABLED", true),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		CacheTTL:          p.duration("CACHE_TTL", time.Second),

		JournalWorkers:    p.int("JOURNAL_WORKERS", 2),
		JournalQueue:      p.int("JOURNAL_QUEUE", 4096),
		JournalMaxRetries: p.int("JOURNAL_MAX_RETRIES", 0),

		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	cfg.Accounts = p.seeds("ACCOUNT_LIMITS", DefaultLimits)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ledger cannot start with.
func (c *Config) Validate() error {
	if strings.Count(c.LedgerFileTemplate, "%") != 1 || !strings.Contains(c.LedgerFileTemplate, "%d") {
		return fmt.Errorf("LEDGER_FILE_TEMPLATE must contain exactly one %%d verb, got %q", c.LedgerFileTemplate)
	}
	if strings.ContainsRune(c.LedgerFileTemplate, os.PathSeparator) {
		return fmt.Errorf("LEDGER_FILE_TEMPLATE must be a file name, got %q", c.LedgerFileTemplate)
	}
	if c.MaxRequestSize < 16 {
		return fmt.Errorf("MAX_REQUEST_SIZE must be at least 16, got %d", c.MaxRequestSize)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("MAX_CONNS must be positive, got %d", c.MaxConns)
	}
	if c.DispatchWorkers < 1 || c.JournalWorkers < 1 {
		return errors.New("DISPATCH_WORKERS and JOURNAL_WORKERS must be positive")
	}
	if c.DispatchQueue < 1 || c.JournalQueue < 1 {
		return errors.New("DISPATCH_QUEUE and JOURNAL_QUEUE must be positive")
	}
	if c.JournalMaxRetries < 0 {
		return fmt.Errorf("JOURNAL_MAX_RETRIES must not be negative, got %d", c.JournalMaxRetries)
	}
	if len(c.Accounts) == 0 {
		return errors.New("ACCOUNT_LIMITS must name at least one account")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parser records the first conversion error so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return d
}

// seeds parses a comma separated list of limits; account ids follow list order.
func (p *parser) seeds(key string, fallback []int64) []AccountSeed {
	limits := fallback
	if value, ok := os.LookupEnv(key); ok && value != "" {
		limits = nil
		for _, field := range strings.Split(value, ",") {
			limit, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
			if err != nil {
				p.fail(key, value, err)
				return nil
			}
			if limit < 0 {
				p.fail(key, value, errors.New("limits must not be negative"))
				return nil
			}
			limits = append(limits, limit)
		}
	}

	seeds := make([]AccountSeed, 0, len(limits))
	for i, limit := range limits {
		seeds = append(seeds, AccountSeed{ID: int64(i + 1), Limit: limit})
	}
	return seeds
}
