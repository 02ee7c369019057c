package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// maxSkippedLines is the budget of consecutive non-JSON lines tolerated
	// before a command fails with ErrParse. Boot banners and stray debug
	// output stay below this; a wedged device does not.
	maxSkippedLines = 3

	// readPollInterval is how long each blocking port read waits before
	// the overall deadline is rechecked.
	readPollInterval = 100 * time.Millisecond

	// readChunkSize is the per-read buffer size.
	readChunkSize = 256
)

// Serial is a Transport over a line-oriented serial link.
//
// Commands are written as the path followed by a newline. The device
// answers with one JSON line; anything else on the line (boot noise,
// debug prints) is discarded up to a small budget.
//
// The port is opened lazily on the first Send and held open across
// commands. One mutex serializes the physical line; pacing between
// commands belongs to the dispatcher, not here.
type Serial struct {
	path    string
	baud    int
	timeout time.Duration

	mu     sync.Mutex
	port   serial.Port
	closed bool

	// openPort is swapped out in tests.
	openPort func(path string, mode *serial.Mode) (serial.Port, error)

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSerial creates a serial Transport for the given device path.
// The port is not opened until the first Send.
func NewSerial(path string, baud int, timeout time.Duration) *Serial {
	if baud == 0 {
		baud = 115200
	}
	return &Serial{
		path:     path,
		baud:     baud,
		timeout:  timeout,
		openPort: serial.Open,
	}
}

// SetLogger sets the logger for this transport.
func (s *Serial) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Address returns the serial device path.
func (s *Serial) Address() string {
	return s.path
}

// Send writes the command path to the serial line and returns the first
// well-formed JSON line the device answers with.
//
// Non-JSON lines are skipped up to maxSkippedLines, then the command
// fails with ErrParse. The overall wait is bounded by the context
// deadline or the configured timeout, whichever is sooner; exceeding it
// fails with ErrTimeout. Port acquisition or I/O failures fail with
// ErrTransport and drop the port so the next Send reopens it.
func (s *Serial) Send(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: serial %s is closed", ErrTransport, s.path)
	}

	port, err := s.ensureOpen()
	if err != nil {
		return nil, err
	}

	// Drop anything the device emitted between commands.
	if err := port.ResetInputBuffer(); err != nil {
		s.dropPort(port)
		return nil, fmt.Errorf("%w: reset input buffer: %w", ErrTransport, err)
	}

	if _, err := port.Write([]byte(path + "\n")); err != nil {
		s.dropPort(port)
		return nil, fmt.Errorf("%w: write %s: %w", ErrTransport, s.path, err)
	}

	line, err := s.readJSONLine(ctx, port)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// ensureOpen opens the port if it is not already open.
func (s *Serial) ensureOpen() (serial.Port, error) {
	if s.port != nil {
		return s.port, nil
	}

	mode := &serial.Mode{BaudRate: s.baud}
	port, err := s.openPort(s.path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransport, s.path, err)
	}

	s.port = port
	s.logDebug("serial port opened", "path", s.path, "baud", s.baud)
	return port, nil
}

// dropPort closes and forgets the port after an I/O failure so the next
// Send reacquires it.
func (s *Serial) dropPort(port serial.Port) {
	port.Close()
	if s.port == port {
		s.port = nil
	}
}

// readJSONLine reads lines from the port until one parses as JSON, the
// skip budget is exhausted, or the deadline passes.
func (s *Serial) readJSONLine(ctx context.Context, port serial.Port) ([]byte, error) {
	deadline := deadlineFrom(ctx, s.timeout)

	if err := port.SetReadTimeout(readPollInterval); err != nil {
		s.dropPort(port)
		return nil, fmt.Errorf("%w: set read timeout: %w", ErrTransport, err)
	}

	var (
		acc     []byte
		skipped int
		buf     = make([]byte, readChunkSize)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, s.path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no response from %s", ErrTimeout, s.path)
		}

		n, err := port.Read(buf)
		if err != nil {
			s.dropPort(port)
			return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, s.path, err)
		}
		acc = append(acc, buf[:n]...)

		for {
			idx := bytes.IndexByte(acc, '\n')
			if idx < 0 {
				break
			}
			line := bytes.TrimSpace(acc[:idx])
			acc = acc[idx+1:]

			if len(line) == 0 {
				continue
			}
			if json.Valid(line) {
				out := make([]byte, len(line))
				copy(out, line)
				return out, nil
			}

			skipped++
			s.logDebug("skipping non-JSON line", "path", s.path, "skipped", skipped)
			if skipped >= maxSkippedLines {
				return nil, fmt.Errorf("%w: %d non-JSON lines from %s", ErrParse, skipped, s.path)
			}
		}
	}
}

// Close releases the serial port. Safe to call multiple times.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

// logDebug logs a debug message if logger is set.
func (s *Serial) logDebug(msg string, keysAndValues ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
