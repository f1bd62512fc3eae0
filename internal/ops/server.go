package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bank-ledger/internal/dispatcher"
	"bank-ledger/internal/models"
	"bank-ledger/internal/utils"
	"bank-ledger/internal/worker"
)

const defaultJournalLimit = 50

// JournalReader lists mirrored transactions, newest first.
type JournalReader interface {
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.JournalEntry, error)
}

// Server exposes health and runtime counters on a port separate from the
// ledger protocol.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	dispatcher func() dispatcher.Stats
	pools      []*worker.WorkerPool
	journal    JournalReader
	started    time.Time
}

// NewServer serves /health, /stats and /journal/:id on addr. /stats reports
// dispatcherStats and the counters of every pool.
func NewServer(addr string, dispatcherStats func() dispatcher.Stats, pools ...*worker.WorkerPool) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:     gin.New(),
		dispatcher: dispatcherStats,
		pools:      pools,
		started:    time.Now(),
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.router.GET("/health", s.health)
	s.router.GET("/stats", s.stats)
	s.router.GET("/journal/:id", s.journalEntries)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetJournal enables /journal/:id. Call before serving.
func (s *Server) SetJournal(journal JournalReader) {
	s.journal = journal
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	utils.LogSuccess("OpsServer", "listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully, waiting at most until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Bank ledger is running",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) stats(c *gin.Context) {
	pools := make([]worker.PoolStats, 0, len(s.pools))
	for _, pool := range s.pools {
		pools = append(pools, pool.GetStats())
	}

	body := gin.H{"pools": pools}
	if s.dispatcher != nil {
		body["dispatcher"] = s.dispatcher()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) journalEntries(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "journal disabled"})
		return
	}

	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || accountID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid account id"})
		return
	}

	limit := defaultJournalLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid limit"})
			return
		}
	}

	entries, err := s.journal.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		utils.LogError("OpsServer", "journal listing failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		utils.LogResponse(c.Request.URL.Path, c.Writer.Status(), time.Since(startTime))
	}
}
