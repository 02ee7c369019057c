package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/catalog"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// recordingTransport logs each Send with its start time. An optional
// block channel makes Sends hang until released; when blockPaths is set
// only those paths block. errPaths fail matching paths.
type recordingTransport struct {
	mu     sync.Mutex
	paths  []string
	starts []time.Time

	block      chan struct{}
	blockPaths map[string]bool
	errPaths   map[string]error
}

func (r *recordingTransport) Send(ctx context.Context, path string) ([]byte, error) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.starts = append(r.starts, time.Now())
	block := r.block
	if r.blockPaths != nil && !r.blockPaths[path] {
		block = nil
	}
	err := r.errPaths[path]
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, transport.ErrTimeout
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(`{"success":true}`), nil
}

func (r *recordingTransport) Address() string { return "fake:0" }
func (r *recordingTransport) Close() error    { return nil }

func (r *recordingTransport) recorded() ([]string, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := append([]string(nil), r.paths...)
	starts := append([]time.Time(nil), r.starts...)
	return paths, starts
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestDispatcher_FIFOOrder(t *testing.T) {
	tr := &recordingTransport{}
	d := New(tr, Options{MinInterval: time.Millisecond})
	defer d.Stop()

	ctx := context.Background()
	chans := []<-chan Result{
		d.Enqueue(ctx, "/bulb/a/on"),
		d.Enqueue(ctx, "/bulb/b/on"),
		d.Enqueue(ctx, "/bulb/c/on"),
	}
	for _, ch := range chans {
		if res := await(t, ch); res.Err != nil {
			t.Fatalf("result error = %v", res.Err)
		}
	}

	paths, _ := tr.recorded()
	want := []string{"/bulb/a/on", "/bulb/b/on", "/bulb/c/on"}
	if len(paths) != len(want) {
		t.Fatalf("dispatched %d commands, want %d", len(paths), len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestDispatcher_StartToStartSpacing(t *testing.T) {
	tr := &recordingTransport{}
	minInterval := 60 * time.Millisecond
	d := New(tr, Options{MinInterval: minInterval})
	defer d.Stop()

	ctx := context.Background()
	chans := []<-chan Result{
		d.Enqueue(ctx, "/bulb/a/on"),
		d.Enqueue(ctx, "/bulb/a/off"),
		d.Enqueue(ctx, "/bulb/a/on"),
	}
	for _, ch := range chans {
		await(t, ch)
	}

	_, starts := tr.recorded()
	if len(starts) != 3 {
		t.Fatalf("dispatched %d commands, want 3", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// Small scheduling slack; the invariant is the lower bound.
		if gap < minInterval-5*time.Millisecond {
			t.Errorf("gap between starts %d and %d = %v, want >= %v", i-1, i, gap, minInterval)
		}
	}
}

func TestDispatcher_StatusBypassesQueue(t *testing.T) {
	block := make(chan struct{})
	tr := &recordingTransport{
		block:      block,
		blockPaths: map[string]bool{"/bulb/a/on": true},
	}
	d := New(tr, Options{MinInterval: 500 * time.Millisecond, Timeout: 5 * time.Second})
	defer d.Stop()

	ctx := context.Background()

	// Occupy the worker with a command that hangs.
	busy := d.Enqueue(ctx, "/bulb/a/on")

	// Wait until the worker has actually started it.
	deadline := time.Now().Add(time.Second)
	for {
		paths, _ := tr.recorded()
		if len(paths) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never started the blocking command")
		}
		time.Sleep(time.Millisecond)
	}

	// The status query must complete while the queue is stuck.
	res := await(t, d.Enqueue(ctx, catalog.StatusPath))
	if res.Err != nil {
		t.Fatalf("status query error = %v", res.Err)
	}

	block <- struct{}{}
	await(t, busy)
}

func TestDispatcher_FailureDoesNotHaltQueue(t *testing.T) {
	tr := &recordingTransport{errPaths: map[string]error{
		"/bulb/a/on": transport.ErrTransport,
	}}
	d := New(tr, Options{MinInterval: time.Millisecond})
	defer d.Stop()

	ctx := context.Background()
	first := d.Enqueue(ctx, "/bulb/a/on")
	second := d.Enqueue(ctx, "/bulb/b/on")

	if res := await(t, first); !errors.Is(res.Err, transport.ErrTransport) {
		t.Fatalf("first result error = %v, want ErrTransport", res.Err)
	}
	if res := await(t, second); res.Err != nil {
		t.Fatalf("second result error = %v, want success after earlier failure", res.Err)
	}
}

func TestDispatcher_StopFailsQueuedCommands(t *testing.T) {
	block := make(chan struct{})
	tr := &recordingTransport{block: block}
	d := New(tr, Options{MinInterval: time.Millisecond, Timeout: 5 * time.Second})

	ctx := context.Background()
	inflight := d.Enqueue(ctx, "/bulb/a/on")

	// Let the worker pick it up.
	deadline := time.Now().Add(time.Second)
	for {
		paths, _ := tr.recorded()
		if len(paths) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never started the blocking command")
		}
		time.Sleep(time.Millisecond)
	}

	queued := d.Enqueue(ctx, "/bulb/b/on")

	stopDone := make(chan struct{})
	go func() {
		d.Stop()
		close(stopDone)
	}()

	// The in-flight command is allowed to finish.
	block <- struct{}{}
	if res := await(t, inflight); res.Err != nil {
		t.Fatalf("in-flight result error = %v, want completion", res.Err)
	}

	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}

	// Queued-but-undispatched fails with ErrShutdown.
	if res := await(t, queued); !errors.Is(res.Err, ErrShutdown) {
		t.Fatalf("queued result error = %v, want ErrShutdown", res.Err)
	}

	// Enqueue after Stop.
	if res := await(t, d.Enqueue(ctx, "/bulb/c/on")); !errors.Is(res.Err, ErrShutdown) {
		t.Fatalf("Enqueue after Stop error = %v, want ErrShutdown", res.Err)
	}
}

func TestDispatcher_Pending(t *testing.T) {
	block := make(chan struct{})
	tr := &recordingTransport{block: block}
	d := New(tr, Options{MinInterval: time.Millisecond, Timeout: 5 * time.Second})
	defer d.Stop()

	ctx := context.Background()
	first := d.Enqueue(ctx, "/bulb/a/on")
	second := d.Enqueue(ctx, "/bulb/b/on")

	if got := d.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}

	block <- struct{}{}
	await(t, first)
	block <- struct{}{}
	await(t, second)

	// Results are delivered before the counter decrements in the worst
	// interleaving; poll briefly.
	deadline := time.Now().Add(time.Second)
	for d.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Pending() = %d, want 0", d.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcher_StatusNotCountedPending(t *testing.T) {
	block := make(chan struct{})
	tr := &recordingTransport{block: block}
	d := New(tr, Options{MinInterval: time.Millisecond, Timeout: 5 * time.Second})
	defer d.Stop()

	statusCh := d.Enqueue(context.Background(), catalog.StatusPath)

	if got := d.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0 for a status-only load", got)
	}

	block <- struct{}{}
	await(t, statusCh)
}
