package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/bulbrelay/bulb-relay-core/internal/catalog"
	"github.com/bulbrelay/bulb-relay-core/internal/dispatch"
	"github.com/bulbrelay/bulb-relay-core/internal/transport"
)

// defaultRescanInterval is the period of the background rescan when none
// is configured.
const defaultRescanInterval = 30 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Device pairs one configured controller with its channel and its pacing
// dispatcher. Identity is the transport address; the bulb names a device
// serves may change between rescans.
type Device struct {
	// ID is the stable identifier from configuration.
	ID string

	Transport  transport.Transport
	Dispatcher *dispatch.Dispatcher
}

// Outcome is the per-device result of one rescan.
type Outcome struct {
	DeviceID string
	Address  string

	// Bulbs is the number of bulbs the device reported. Zero when Err is
	// set.
	Bulbs int

	// Err is the catalog query failure, nil when the device answered.
	Err error
}

// DeviceStatus describes one device as of the last rescan.
type DeviceStatus struct {
	ID      string
	Address string
	Online  bool
	Bulbs   int
}

// binding ties a bulb name to the device that reported it and the bulb
// record it reported.
type binding struct {
	device *Device
	bulb   catalog.Bulb
}

// snapshot is one immutable generation of the mapping. It is replaced
// wholesale by rescans, never mutated.
type snapshot struct {
	byName map[string]binding
	online map[string]bool
	bulbs  map[string]int
}

func emptySnapshot() *snapshot {
	return &snapshot{
		byName: make(map[string]binding),
		online: make(map[string]bool),
		bulbs:  make(map[string]int),
	}
}

// Resolver owns the name to device mapping for a fleet of devices.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Lookup and Snapshot read
//     the current snapshot without blocking rescans.
type Resolver struct {
	devices  []*Device
	interval time.Duration

	mu   sync.RWMutex
	snap *snapshot

	// onRescan is invoked after every snapshot swap.
	onRescan   func([]Outcome)
	onRescanMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Options configures a Resolver.
type Options struct {
	// RescanInterval is the period of Run's background rescans.
	// Default: 30 s.
	RescanInterval time.Duration
}

// New creates a Resolver over the given devices in their configured
// order. The mapping starts empty; call RescanAll to populate it.
func New(devices []*Device, opts Options) *Resolver {
	interval := opts.RescanInterval
	if interval <= 0 {
		interval = defaultRescanInterval
	}
	return &Resolver{
		devices:  devices,
		interval: interval,
		snap:     emptySnapshot(),
	}
}

// SetLogger sets the logger for this resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// SetOnRescan registers a callback invoked after every completed rescan,
// periodic or forced, with the per-device outcomes. The callback runs on
// the rescanning goroutine and must not call RescanAll.
func (r *Resolver) SetOnRescan(fn func([]Outcome)) {
	r.onRescanMu.Lock()
	r.onRescan = fn
	r.onRescanMu.Unlock()
}

// Lookup resolves a bulb name against the current snapshot.
//
// It never performs I/O. A miss returns ErrNotFound; triggering a rescan
// on miss is the coordinator's decision, not the resolver's.
func (r *Resolver) Lookup(name string) (*Device, error) {
	snap := r.current()
	b, ok := snap.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return b.device, nil
}

// Bulb returns the last-known catalog record for a name, if any.
func (r *Resolver) Bulb(name string) (catalog.Bulb, bool) {
	snap := r.current()
	b, ok := snap.byName[name]
	return b.bulb, ok
}

// Snapshot returns the last-known bulb record for every bound name.
// It never performs I/O.
func (r *Resolver) Snapshot() map[string]catalog.Bulb {
	snap := r.current()
	out := make(map[string]catalog.Bulb, len(snap.byName))
	for name, b := range snap.byName {
		out[name] = b.bulb
	}
	return out
}

// BoundBulb pairs a bulb record with the device currently serving it.
type BoundBulb struct {
	DeviceID string
	Bulb     catalog.Bulb
}

// Bindings returns the current bindings keyed by bulb name, each with the
// serving device's ID. It never performs I/O.
func (r *Resolver) Bindings() map[string]BoundBulb {
	snap := r.current()
	out := make(map[string]BoundBulb, len(snap.byName))
	for name, b := range snap.byName {
		out[name] = BoundBulb{DeviceID: b.device.ID, Bulb: b.bulb}
	}
	return out
}

// Devices reports every configured device with its online state from the
// last rescan.
func (r *Resolver) Devices() []DeviceStatus {
	snap := r.current()
	out := make([]DeviceStatus, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, DeviceStatus{
			ID:      dev.ID,
			Address: dev.Transport.Address(),
			Online:  snap.online[dev.ID],
			Bulbs:   snap.bulbs[dev.ID],
		})
	}
	return out
}

// RescanAll queries every device concurrently and swaps in a rebuilt
// mapping.
//
// Bindings of devices that failed to answer are carried over untouched.
// Devices that answered are folded in configured order, so on a name
// conflict the later device wins. Names absent from the combined result
// are dropped. The swap is atomic: callers see either the old or the new
// mapping, never a mix.
//
// Returns one Outcome per device, in configured order. Per-device
// failures never fail the rescan itself.
func (r *Resolver) RescanAll(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, len(r.devices))
	catalogs := make([][]catalog.Bulb, len(r.devices))

	var wg sync.WaitGroup
	for i, dev := range r.devices {
		wg.Add(1)
		go func(i int, dev *Device) {
			defer wg.Done()
			bulbs, err := catalog.Query(ctx, dev.Transport)
			outcomes[i] = Outcome{
				DeviceID: dev.ID,
				Address:  dev.Transport.Address(),
				Bulbs:    len(bulbs),
				Err:      err,
			}
			catalogs[i] = bulbs
		}(i, dev)
	}
	wg.Wait()

	next := emptySnapshot()
	failed := make(map[*Device]bool)
	for i, out := range outcomes {
		if out.Err != nil {
			failed[r.devices[i]] = true
			r.logWarn("rescan: device did not answer",
				"device", out.DeviceID, "address", out.Address, "error", out.Err)
		}
	}

	// Carry over bindings of unresponsive devices untouched.
	prev := r.current()
	for name, b := range prev.byName {
		if failed[b.device] {
			next.byName[name] = b
		}
	}

	// Fold responsive devices in configured order; later wins.
	for i, dev := range r.devices {
		if outcomes[i].Err != nil {
			continue
		}
		next.online[dev.ID] = true
		next.bulbs[dev.ID] = len(catalogs[i])
		for _, bulb := range catalogs[i] {
			next.byName[bulb.Name] = binding{device: dev, bulb: bulb}
		}
	}

	r.mu.Lock()
	r.snap = next
	r.mu.Unlock()

	r.logDebug("rescan complete", "names", len(next.byName))

	r.onRescanMu.RLock()
	fn := r.onRescan
	r.onRescanMu.RUnlock()
	if fn != nil {
		fn(outcomes)
	}

	return outcomes
}

// Run invokes RescanAll every rescan interval until the context is
// cancelled. An immediate first rescan is the caller's choice; Run waits
// one full interval before its first.
func (r *Resolver) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RescanAll(ctx)
		}
	}
}

// current returns the live snapshot.
func (r *Resolver) current() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// logDebug logs a debug message if logger is set.
func (r *Resolver) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (r *Resolver) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
