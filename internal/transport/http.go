package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// maxResponseBytes caps how much of a response body is read. Catalog
// responses for a fully populated controller stay well under this.
const maxResponseBytes = 1 << 20

// HTTP is a Transport over a controller's embedded HTTP server.
//
// Commands map to GET requests on http://host:port with the command path
// appended verbatim, including the literal query-style rgb segment. The
// response body is returned as-is; parsing belongs to the caller.
type HTTP struct {
	addr    string
	baseURL string
	timeout time.Duration

	client *http.Client

	mu     sync.Mutex
	closed bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHTTP creates an HTTP Transport for the given host and port.
// No connection is made until the first Send.
func NewHTTP(host string, port int, timeout time.Duration) *HTTP {
	if port == 0 {
		port = 80
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	return &HTTP{
		addr:    addr,
		baseURL: "http://" + addr,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// SetLogger sets the logger for this transport.
func (h *HTTP) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Address returns the host:port of the controller.
func (h *HTTP) Address() string {
	return h.addr
}

// Send issues GET baseURL+path and returns the response body.
//
// Connection failures and non-2xx statuses fail with ErrTransport;
// deadline expiry fails with ErrTimeout. The body is returned verbatim.
func (h *HTTP) Send(ctx context.Context, path string) ([]byte, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: http %s is closed", ErrTransport, h.addr)
	}
	h.mu.Unlock()

	deadline := deadlineFrom(ctx, h.timeout)
	reqCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %s returned status %d", ErrTransport, h.addr, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, h.classify(err)
	}
	return body, nil
}

// classify maps an I/O error onto the transport error taxonomy.
func (h *HTTP) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, h.addr, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, h.addr, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, h.addr, err)
}

// Close marks the transport closed and drops idle connections.
// Safe to call multiple times.
func (h *HTTP) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.client.CloseIdleConnections()
	return nil
}
