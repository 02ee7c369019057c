package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/catalog"
	"github.com/bulbrelay/bulb-relay-core/internal/dispatch"
	"github.com/bulbrelay/bulb-relay-core/internal/resolver"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// scriptedTransport answers the catalog path with a settable catalog and
// command paths with settable replies or errors, recording every call.
type scriptedTransport struct {
	addr string

	mu         sync.Mutex
	catalog    string
	catalogErr error
	replies    map[string]string
	errs       map[string]error
	calls      []string
}

func (s *scriptedTransport) Send(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, path)

	if path == catalog.StatusPath {
		if s.catalogErr != nil {
			return nil, s.catalogErr
		}
		return []byte(s.catalog), nil
	}
	if err, ok := s.errs[path]; ok && err != nil {
		return nil, err
	}
	if body, ok := s.replies[path]; ok {
		return []byte(body), nil
	}
	return []byte(`{"success":true,"bulb":0,"action":"ok"}`), nil
}

func (s *scriptedTransport) Address() string { return s.addr }
func (s *scriptedTransport) Close() error    { return nil }

func (s *scriptedTransport) setCatalog(body string, err error) {
	s.mu.Lock()
	s.catalog = body
	s.catalogErr = err
	s.mu.Unlock()
}

func (s *scriptedTransport) setError(path string, err error) {
	s.mu.Lock()
	if s.errs == nil {
		s.errs = make(map[string]error)
	}
	s.errs[path] = err
	s.mu.Unlock()
}

func (s *scriptedTransport) setReply(path, body string) {
	s.mu.Lock()
	if s.replies == nil {
		s.replies = make(map[string]string)
	}
	s.replies[path] = body
	s.mu.Unlock()
}

// commandCalls returns the non-catalog paths sent, and catalogCalls the
// number of catalog queries.
func (s *scriptedTransport) commandCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.calls {
		if p != catalog.StatusPath {
			out = append(out, p)
		}
	}
	return out
}

func (s *scriptedTransport) catalogCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.calls {
		if p == catalog.StatusPath {
			n++
		}
	}
	return n
}

func catalogBody(names ...string) string {
	var sb strings.Builder
	sb.WriteString(`{"bulbs":[`)
	for i, n := range names {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id":%d,"name":%q,"address":"AA:%02d","connected":true}`, i, n, i)
	}
	fmt.Fprintf(&sb, `],"count":%d}`, len(names))
	return sb.String()
}

// testFleet wires scripted transports into real dispatchers, a resolver,
// and a coordinator, the way main does.
func testFleet(t *testing.T, catalogs ...string) (*Coordinator, []*scriptedTransport) {
	t.Helper()

	transports := make([]*scriptedTransport, len(catalogs))
	devices := make([]*resolver.Device, len(catalogs))
	for i, body := range catalogs {
		transports[i] = &scriptedTransport{addr: fmt.Sprintf("fake:%d", i), catalog: body}
		d := dispatch.New(transports[i], dispatch.Options{
			MinInterval: time.Millisecond,
			Timeout:     time.Second,
		})
		t.Cleanup(d.Stop)
		devices[i] = &resolver.Device{
			ID:         fmt.Sprintf("relay-%d", i),
			Transport:  transports[i],
			Dispatcher: d,
		}
	}

	res := resolver.New(devices, resolver.Options{})
	res.RescanAll(context.Background())
	return New(res, devices), transports
}

func TestCoordinator_DispatchSuccess(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))
	transports[0].setReply("/bulb/desk/on", `{"success":true,"bulb":0,"action":"on"}`)

	resp, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Action != "on" || resp.DeviceID != "relay-0" {
		t.Errorf("Dispatch() = %+v", resp)
	}

	calls := transports[0].commandCalls()
	if len(calls) != 1 || calls[0] != "/bulb/desk/on" {
		t.Errorf("command calls = %v, want exactly one /bulb/desk/on", calls)
	}
}

func TestCoordinator_UnknownNameRescansOnce(t *testing.T) {
	c, transports := testFleet(t, catalogBody())

	// The bulb appears only on the rescan triggered by the miss.
	transports[0].setCatalog(catalogBody("desk"), nil)

	before := transports[0].catalogCalls()
	resp, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.DeviceID != "relay-0" {
		t.Errorf("DeviceID = %s, want relay-0", resp.DeviceID)
	}
	if got := transports[0].catalogCalls() - before; got != 1 {
		t.Errorf("rescans on miss = %d, want exactly 1", got)
	}
}

func TestCoordinator_BulbNotFound(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))

	before := transports[0].catalogCalls()
	_, err := c.Dispatch(context.Background(), "cellar", ActionOn, Params{})
	if !errors.Is(err, ErrBulbNotFound) {
		t.Fatalf("Dispatch() error = %v, want ErrBulbNotFound", err)
	}
	if got := transports[0].catalogCalls() - before; got != 1 {
		t.Errorf("rescans = %d, want exactly 1 before giving up", got)
	}
	if calls := transports[0].commandCalls(); len(calls) != 0 {
		t.Errorf("command calls = %v, want none", calls)
	}
}

func TestCoordinator_CommandFailedNotRetried(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))
	transports[0].setReply("/bulb/desk/on", `{"success":false,"bulb":0,"action":"on"}`)

	before := transports[0].catalogCalls()
	_, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrCommandFailed", err)
	}
	if calls := transports[0].commandCalls(); len(calls) != 1 {
		t.Errorf("command calls = %v, want exactly 1 (no retry)", calls)
	}
	if got := transports[0].catalogCalls() - before; got != 0 {
		t.Errorf("rescans = %d, want 0 for a device-reported failure", got)
	}
}

func TestCoordinator_TimeoutNotRetried(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))
	transports[0].setError("/bulb/desk/on", transport.ErrTimeout)

	before := transports[0].catalogCalls()
	_, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("Dispatch() error = %v, want ErrTimeout", err)
	}
	if calls := transports[0].commandCalls(); len(calls) != 1 {
		t.Errorf("command calls = %v, want exactly 1 (timeouts never retry)", calls)
	}
	if got := transports[0].catalogCalls() - before; got != 0 {
		t.Errorf("rescans = %d, want 0 on timeout", got)
	}
}

func TestCoordinator_TransportErrorRetriesOnNewDevice(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"), catalogBody("porch"))

	// relay-0 dies; after the rescan the bulb shows up on relay-1.
	transports[0].setError("/bulb/desk/on", transport.ErrTransport)
	transports[0].setCatalog("", transport.ErrTransport)
	transports[1].setCatalog(catalogBody("porch", "desk"), nil)
	transports[1].setReply("/bulb/desk/on", `{"success":true,"bulb":1,"action":"on"}`)

	resp, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.DeviceID != "relay-1" {
		t.Errorf("DeviceID = %s, want the rebound relay-1", resp.DeviceID)
	}

	if calls := transports[1].commandCalls(); len(calls) != 1 || calls[0] != "/bulb/desk/on" {
		t.Errorf("relay-1 command calls = %v, want one /bulb/desk/on", calls)
	}
}

func TestCoordinator_SingleRetryBound(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))
	transports[0].setError("/bulb/desk/on", transport.ErrTransport)

	before := transports[0].catalogCalls()
	_, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("Dispatch() error = %v, want unmasked ErrTransport", err)
	}

	if calls := transports[0].commandCalls(); len(calls) != 2 {
		t.Errorf("command calls = %v, want exactly 2 (one retry, no more)", calls)
	}
	if got := transports[0].catalogCalls() - before; got != 1 {
		t.Errorf("rescans = %d, want exactly 1", got)
	}
}

func TestCoordinator_RetrySkippedWhenNameVanishes(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))

	transports[0].setError("/bulb/desk/on", transport.ErrTransport)
	// The device answers the rescan but no longer reports the bulb, so
	// the binding is dropped and no retry target remains.
	transports[0].setCatalog(catalogBody(), nil)

	_, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("Dispatch() error = %v, want the original ErrTransport", err)
	}
	if calls := transports[0].commandCalls(); len(calls) != 1 {
		t.Errorf("command calls = %v, want 1 (no retry without a binding)", calls)
	}
}

func TestCoordinator_ParseErrorRetries(t *testing.T) {
	c, transports := testFleet(t, catalogBody("desk"))
	transports[0].setReply("/bulb/desk/on", `{"bulb":0,"action":"on"}`)

	_, err := c.Dispatch(context.Background(), "desk", ActionOn, Params{})
	if !errors.Is(err, transport.ErrParse) {
		t.Fatalf("Dispatch() error = %v, want ErrParse for a reply without success", err)
	}
	if calls := transports[0].commandCalls(); len(calls) != 2 {
		t.Errorf("command calls = %v, want 2 (parse errors are retried once)", calls)
	}
}

func TestCoordinator_SnapshotAndDevices(t *testing.T) {
	c, _ := testFleet(t, catalogBody("desk", "shelf"), catalogBody("porch"))

	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Errorf("Snapshot() has %d names, want 3", len(snap))
	}

	devices := c.Devices()
	if len(devices) != 2 {
		t.Fatalf("Devices() has %d entries, want 2", len(devices))
	}
	for _, d := range devices {
		if !d.Online {
			t.Errorf("device %s offline, want online", d.ID)
		}
	}
}

func TestCoordinator_Pending(t *testing.T) {
	c, _ := testFleet(t, catalogBody("desk"))

	pending := c.Pending()
	if got, ok := pending["relay-0"]; !ok || got != 0 {
		t.Errorf("Pending()[relay-0] = %d (ok=%v), want 0", got, ok)
	}
}
