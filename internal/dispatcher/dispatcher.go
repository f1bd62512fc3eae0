package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"

	"bank-ledger/internal/utils"
	"bank-ledger/internal/worker"
)

// A request line needs at least a method and a separator.
const minRequestSize = 4

var (
	errEmptyRequest    = errors.New("connection closed before sending a request")
	errRequestTooLarge = errors.New("request does not fit the read buffer")
)

// Stats counts connections over the dispatcher lifetime.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Served   int64 `json:"served"`
	Rejected int64 `json:"rejected"`
	Active   int64 `json:"active"`
}

// Dispatcher serves one request per connection. Reader goroutines only wait
// for the request bytes; decoding, routing and the response all run as jobs
// on the pool, so a single-worker pool processes requests one at a time.
type Dispatcher struct {
	pool           *worker.WorkerPool
	handler        fasthttp.RequestHandler
	badRequest     fasthttp.RequestHandler
	maxRequestSize int
	slots          *semaphore.Weighted

	acceptCtx    context.Context
	cancelAccept context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	readers  sync.WaitGroup

	accepted atomic.Int64
	served   atomic.Int64
	rejected atomic.Int64
	active   atomic.Int64
}

// New builds a dispatcher that runs handler for each complete request and
// badRequest for input that does not parse. Requests larger than
// maxRequestSize bytes are dropped without a response.
func New(pool *worker.WorkerPool, handler, badRequest fasthttp.RequestHandler, maxRequestSize, maxConns int) *Dispatcher {
	if maxConns < 1 {
		maxConns = 1
	}
	acceptCtx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		pool:           pool,
		handler:        handler,
		badRequest:     badRequest,
		maxRequestSize: maxRequestSize,
		slots:          semaphore.NewWeighted(int64(maxConns)),
		acceptCtx:      acceptCtx,
		cancelAccept:   cancel,
		conns:          make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (d *Dispatcher) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return d.Serve(ln)
}

// Serve accepts connections from ln until Shutdown. At most maxConns
// connections are held open at once; further clients wait in the backlog.
func (d *Dispatcher) Serve(ln net.Listener) error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		ln.Close()
		return nil
	}
	d.listener = ln
	d.mu.Unlock()

	utils.LogSuccess("Dispatcher", "listening on %s", ln.Addr())

	var backoff time.Duration
	for {
		if err := d.slots.Acquire(d.acceptCtx, 1); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			d.slots.Release(1)
			if d.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				utils.LogWarning("Dispatcher", "accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		if !d.track(conn) {
			conn.Close()
			d.slots.Release(1)
			return nil
		}

		seq := d.accepted.Add(1)
		d.active.Add(1)
		go d.serveConn(conn, seq)
	}
}

func (d *Dispatcher) serveConn(conn net.Conn, seq int64) {
	defer d.readers.Done()

	data, err := d.readRequest(conn)
	if err != nil {
		utils.LogDebug("Dispatcher", "conn %d from %s dropped: %v", seq, conn.RemoteAddr(), err)
		d.rejected.Add(1)
		d.finish(conn)
		return
	}

	job := worker.Job{
		ID:   fmt.Sprintf("conn-%d", seq),
		Task: func() error { return d.process(conn, data) },
		OnDone: func(err error) {
			// Abandoned jobs never ran process, so the connection is still open.
			if errors.Is(err, worker.ErrJobAbandoned) {
				d.rejected.Add(1)
				d.finish(conn)
			}
		},
	}
	if err := d.pool.SubmitBlocking(d.acceptCtx, job); err != nil {
		utils.LogWarning("Dispatcher", "conn %d dropped: %v", seq, err)
		d.rejected.Add(1)
		d.finish(conn)
	}
}

// readRequest reads until the buffer holds a complete request, the client
// stops sending, or the bound is reached.
func (d *Dispatcher) readRequest(conn net.Conn) ([]byte, error) {
	buf := make([]byte, d.maxRequestSize)
	n := 0

	for {
		m, err := conn.Read(buf[n:])
		n += m

		if n >= len(buf) {
			return nil, errRequestTooLarge
		}
		if m > 0 && requestComplete(buf[:n]) {
			return buf[:n], nil
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			if n == 0 {
				return nil, errEmptyRequest
			}
			return buf[:n], nil
		}
	}
}

// requestComplete reports whether data holds the full header block and as
// many body bytes as Content-Length announces.
func requestComplete(data []byte) bool {
	end := headerEnd(data)
	if end < 0 {
		return false
	}

	var header fasthttp.RequestHeader
	if err := header.Read(bufio.NewReader(bytes.NewReader(data[:end]))); err != nil {
		// Unparseable, let process answer it.
		return true
	}

	contentLength := header.ContentLength()
	return contentLength <= 0 || len(data)-end >= contentLength
}

func headerEnd(data []byte) int {
	end := -1
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		end = i + 4
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 && (end < 0 || i+2 < end) {
		end = i + 2
	}
	return end
}

// process decodes data, runs the handler chain and writes exactly one
// response before closing conn.
func (d *Dispatcher) process(conn net.Conn, data []byte) error {
	defer d.finish(conn)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init2(conn, fasthttpLogger{}, false)

	switch {
	case len(data) < minRequestSize:
		d.badRequest(ctx)
	default:
		if err := ctx.Request.Read(bufio.NewReader(bytes.NewReader(data))); err != nil {
			utils.LogDebug("Dispatcher", "unparseable request from %s: %v", conn.RemoteAddr(), err)
			ctx.Request.Reset()
			d.badRequest(ctx)
		} else {
			d.handler(ctx)
		}
	}

	ctx.Response.SetConnectionClose()
	if _, err := ctx.Response.WriteTo(conn); err != nil {
		d.rejected.Add(1)
		return fmt.Errorf("write response to %s: %w", conn.RemoteAddr(), err)
	}

	d.served.Add(1)
	return nil
}

// track registers conn and its reader unless Shutdown has started.
func (d *Dispatcher) track(conn net.Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closing {
		return false
	}
	d.conns[conn] = struct{}{}
	d.readers.Add(1)
	return true
}

func (d *Dispatcher) finish(conn net.Conn) {
	d.mu.Lock()
	delete(d.conns, conn)
	d.mu.Unlock()

	conn.Close()
	d.active.Add(-1)
	d.slots.Release(1)
}

func (d *Dispatcher) isClosing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closing
}

// Shutdown stops accepting, wakes readers still waiting for request bytes or
// queue space and waits for them. Requests already queued are left to the
// pool; drain it after Shutdown returns.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.cancelAccept()
	if d.listener != nil {
		d.listener.Close()
	}
	for conn := range d.conns {
		conn.SetReadDeadline(time.Now())
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
		utils.LogSuccess("Dispatcher", "stopped accepting; all readers finished")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// GetStats returns the connection counters.
func (d *Dispatcher) GetStats() Stats {
	return Stats{
		Accepted: d.accepted.Load(),
		Served:   d.served.Load(),
		Rejected: d.rejected.Load(),
		Active:   d.active.Load(),
	}
}

type fasthttpLogger struct{}

func (fasthttpLogger) Printf(format string, args ...any) {
	utils.LogDebug("fasthttp", format, args...)
}
