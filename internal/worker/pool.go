package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bank-ledger/internal/utils"
)

var (
	ErrQueueFull       = errors.New("worker pool queue is full")
	ErrPoolClosed      = errors.New("worker pool is closed")
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")
	ErrJobAbandoned    = errors.New("worker pool job abandoned at shutdown")
)

// Job is a unit of work executed by one worker.
type Job struct {
	ID      string
	Task    func() error
	RetryOn func(error) bool // nil means never retry
	OnDone  func(error)
}

// WorkerPool runs submitted jobs on a fixed number of goroutines. With a single
// worker, jobs run strictly one after another in submission order.
type WorkerPool struct {
	name       string
	workers    int
	maxRetries int
	jobQueue   chan Job
	stop       chan struct{} // closed by Shutdown; wakes blocked submitters
	draining   chan struct{} // closed once no submitter can enqueue
	quit       chan struct{} // closed on shutdown timeout
	wg         sync.WaitGroup
	senders    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	busy      atomic.Int64
}

// PoolStats is a point-in-time view of the pool counters.
type PoolStats struct {
	Name          string `json:"name"`
	Workers       int    `json:"workers"`
	TotalJobs     int64  `json:"total_jobs"`
	CompletedJobs int64  `json:"completed_jobs"`
	FailedJobs    int64  `json:"failed_jobs"`
	BusyWorkers   int64  `json:"busy_workers"`
	QueuedJobs    int    `json:"queued_jobs"`
}

// NewWorkerPool creates a stopped pool. Failed jobs are retried up to
// maxRetries times when their RetryOn approves the error.
func NewWorkerPool(name string, workers int, queueSize int, maxRetries int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	pool := &WorkerPool{
		name:       name,
		workers:    workers,
		maxRetries: maxRetries,
		jobQueue:   make(chan Job, queueSize),
		stop:       make(chan struct{}),
		draining:   make(chan struct{}),
		quit:       make(chan struct{}),
	}

	utils.LogInfo("WorkerPool", "%s: %d workers, queue %d, max retries %d", name, workers, queueSize, maxRetries)
	return pool
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	utils.LogSuccess("WorkerPool", "%s: workers started", p.name)
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return

		case job := <-p.jobQueue:
			p.executeJob(id, job)

		case <-p.draining:
			p.drain(id)
			return
		}
	}
}

// drain runs whatever is still queued, unless the shutdown times out first.
func (p *WorkerPool) drain(id int) {
	for {
		select {
		case <-p.quit:
			return
		default:
		}

		select {
		case job := <-p.jobQueue:
			p.executeJob(id, job)
		default:
			return
		}
	}
}

// executeJob runs the task, retrying only while RetryOn approves the error.
func (p *WorkerPool) executeJob(workerID int, job Job) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	startTime := time.Now()
	var err error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			utils.LogWarning("WorkerPool", "%s #%d: retry %d for job %s", p.name, workerID, attempt, job.ID)
			time.Sleep(time.Millisecond * time.Duration(100*attempt))
		}

		err = p.run(job)
		if err == nil {
			break
		}
		if job.RetryOn == nil || !job.RetryOn(err) {
			break
		}
	}

	if err == nil {
		p.completed.Add(1)
		utils.LogDebug("WorkerPool", "%s #%d: job %s done in %v", p.name, workerID, job.ID, time.Since(startTime))
	} else {
		p.failed.Add(1)
		utils.LogError("WorkerPool", fmt.Sprintf("%s #%d: job %s failed after %v", p.name, workerID, job.ID, time.Since(startTime)), err)
	}

	if job.OnDone != nil {
		job.OnDone(err)
	}
}

// run shields the worker from a panicking task.
func (p *WorkerPool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return job.Task()
}

// Submit enqueues job without blocking.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	default:
		utils.LogWarning("WorkerPool", "%s: queue full, job %s rejected", p.name, job.ID)
		return ErrQueueFull
	}
}

// SubmitBlocking enqueues job, waiting for queue space, ctx or Shutdown.
// A submitter still waiting when Shutdown starts gets ErrPoolClosed.
func (p *WorkerPool) SubmitBlocking(ctx context.Context, job Job) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.senders.Add(1)
	p.mu.RUnlock()
	defer p.senders.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolClosed
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	}
}

// Shutdown stops accepting jobs and waits for the queue to drain. When
// timeout expires first, workers still busy are left behind and every job
// still queued is finished with ErrJobAbandoned.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.senders.Wait()
		close(p.draining)
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := p.abandonQueued(); n > 0 {
			utils.LogWarning("WorkerPool", "%s: %d jobs left without workers", p.name, n)
		}
		utils.LogSuccess("WorkerPool", "%s: all workers stopped", p.name)
		return nil

	case <-time.After(timeout):
		close(p.quit)
		utils.LogWarning("WorkerPool", "%s: shutdown timeout, %d jobs abandoned", p.name, p.abandonQueued())
		return ErrShutdownTimeout
	}
}

// abandonQueued empties the queue, finishing each job with ErrJobAbandoned.
func (p *WorkerPool) abandonQueued() int {
	n := 0
	for {
		select {
		case job := <-p.jobQueue:
			n++
			p.failed.Add(1)
			if job.OnDone != nil {
				job.OnDone(ErrJobAbandoned)
			}
		default:
			return n
		}
	}
}

// GetStats returns the current counters.
func (p *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		Name:          p.name,
		Workers:       p.workers,
		TotalJobs:     p.submitted.Load(),
		CompletedJobs: p.completed.Load(),
		FailedJobs:    p.failed.Load(),
		BusyWorkers:   p.busy.Load(),
		QueuedJobs:    len(p.jobQueue),
	}
}
