package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/catalog"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

const (
	// defaultMinInterval is the gap between the starts of two consecutive
	// non-status dispatches when no interval is configured.
	defaultMinInterval = 500 * time.Millisecond

	// queueSize is the command queue buffer. Enqueue blocks once it fills,
	// which backpressures callers instead of growing without bound.
	queueSize = 64
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Result is the outcome of one dispatched command.
type Result struct {
	// Body is the raw JSON response on success.
	Body []byte

	// Err wraps transport.ErrTransport, transport.ErrTimeout,
	// transport.ErrParse, or ErrShutdown.
	Err error
}

// command is one queued unit of work.
type command struct {
	ctx    context.Context
	path   string
	result chan Result
}

// Dispatcher serializes and paces command traffic to one device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Dispatcher struct {
	tr          transport.Transport
	minInterval time.Duration
	timeout     time.Duration

	queue   chan *command
	done    *closeOnce
	wg      sync.WaitGroup
	pending atomic.Int64

	logger   Logger
	loggerMu sync.RWMutex
}

// Options configures a Dispatcher.
type Options struct {
	// MinInterval is the start-to-start gap between consecutive
	// non-status dispatches. Default: 500 ms. Zero or negative values
	// other than the literal zero-value struct are honoured as "no gap".
	MinInterval time.Duration

	// Timeout bounds each command round-trip. Zero leaves the bound to
	// the transport's own default.
	Timeout time.Duration
}

// New creates a Dispatcher for the given transport and starts its worker.
//
// Parameters:
//   - tr: Channel to the device this dispatcher paces
//   - opts: Pacing and timeout settings
//
// Returns:
//   - *Dispatcher: Running dispatcher, ready for Enqueue
func New(tr transport.Transport, opts Options) *Dispatcher {
	minInterval := opts.MinInterval
	if minInterval == 0 {
		minInterval = defaultMinInterval
	}

	d := &Dispatcher{
		tr:          tr,
		minInterval: minInterval,
		timeout:     opts.Timeout,
		queue:       make(chan *command, queueSize),
		done:        newCloseOnce(),
	}

	d.wg.Add(1)
	go d.worker()

	return d
}

// SetLogger sets the logger for this dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// Enqueue submits a command and returns a channel that will receive its
// Result exactly once.
//
// Non-status commands join the FIFO queue and respect the pacing
// interval. The status-catalog path bypasses the queue and executes
// immediately in its own goroutine, concurrently with queued traffic.
//
// After Stop, every Enqueue resolves with ErrShutdown.
func (d *Dispatcher) Enqueue(ctx context.Context, path string) <-chan Result {
	result := make(chan Result, 1)

	if d.isStopped() {
		result <- Result{Err: ErrShutdown}
		return result
	}

	if path == catalog.StatusPath {
		go func() {
			body, err := d.send(ctx, path)
			result <- Result{Body: body, Err: err}
		}()
		return result
	}

	cmd := &command{ctx: ctx, path: path, result: result}
	d.pending.Add(1)

	select {
	case d.queue <- cmd:
		// Stop may have won the race after the buffered send went
		// through; sweep the queue so the command still resolves.
		if d.isStopped() {
			d.drain()
		}
	case <-d.done.Done():
		d.pending.Add(-1)
		result <- Result{Err: ErrShutdown}
	}

	return result
}

// Pending returns the number of non-status commands queued or in flight.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Stop shuts the dispatcher down.
//
// Commands that have not started dispatching fail with ErrShutdown. The
// in-flight command, if any, completes or times out on its own. Safe to
// call multiple times.
func (d *Dispatcher) Stop() {
	d.done.Close()
	d.wg.Wait()

	// The worker has exited; anything still queued will never run.
	d.drain()
}

// worker serves the queue sequentially, spacing dispatch starts by the
// configured interval.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	var lastStart time.Time

	for {
		select {
		case <-d.done.Done():
			return
		case cmd := <-d.queue:
			if d.isStopped() {
				d.fail(cmd)
				return
			}
			if !d.waitForSlot(lastStart, cmd) {
				return
			}
			lastStart = time.Now()
			d.execute(cmd)
		}
	}
}

// waitForSlot blocks until the pacing interval since the previous start
// has elapsed. Returns false if the dispatcher stopped while waiting, in
// which case the command is failed with ErrShutdown.
func (d *Dispatcher) waitForSlot(lastStart time.Time, cmd *command) bool {
	if lastStart.IsZero() {
		return true
	}

	wait := d.minInterval - time.Since(lastStart)
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-d.done.Done():
		d.fail(cmd)
		return false
	}
}

// execute runs one command against the transport and delivers its result.
func (d *Dispatcher) execute(cmd *command) {
	defer d.pending.Add(-1)

	body, err := d.send(cmd.ctx, cmd.path)
	if err != nil {
		d.logDebug("command failed", "device", d.tr.Address(), "path", cmd.path, "error", err)
	}
	cmd.result <- Result{Body: body, Err: err}
}

// send performs one transport round-trip bounded by the command timeout.
func (d *Dispatcher) send(ctx context.Context, path string) ([]byte, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.tr.Send(ctx, path)
}

// drain fails every command still sitting in the queue after shutdown.
func (d *Dispatcher) drain() {
	for {
		select {
		case cmd := <-d.queue:
			d.fail(cmd)
		default:
			return
		}
	}
}

// fail resolves a command with ErrShutdown.
func (d *Dispatcher) fail(cmd *command) {
	d.pending.Add(-1)
	cmd.result <- Result{Err: ErrShutdown}
}

// isStopped reports whether Stop has been called.
func (d *Dispatcher) isStopped() bool {
	select {
	case <-d.done.Done():
		return true
	default:
		return false
	}
}

// logDebug logs a debug message if logger is set.
func (d *Dispatcher) logDebug(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
