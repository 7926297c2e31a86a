package device

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Lookup resolves a device by ID.
type Lookup interface {
	Lookup(id string) (*Device, bool)
}

// Fleet is an ordered set of devices keyed by ID. Iteration order is
// ascending ID so every pass over the fleet is deterministic.
//
// A Fleet is not safe for concurrent use; the live fleet is only reachable
// through Registry.Update.
type Fleet struct {
	byID    map[string]*Device
	ordered []*Device
}

// NewFleet builds a fleet, rejecting duplicate IDs.
func NewFleet(devices ...*Device) (*Fleet, error) {
	f := &Fleet{byID: make(map[string]*Device, len(devices))}
	for _, d := range devices {
		if _, dup := f.byID[d.id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDeviceExists, d.id)
		}
		f.byID[d.id] = d
		f.ordered = append(f.ordered, d)
	}
	sort.Slice(f.ordered, func(i, j int) bool { return f.ordered[i].id < f.ordered[j].id })
	return f, nil
}

// BuildFleet creates devices from specs and attaches a seeded environment
// to each. Device i gets seed+i so devices do not share a random stream.
func BuildFleet(specs []Spec, params EnvironmentParams, seed uint64) (*Fleet, error) {
	devices := make([]*Device, 0, len(specs))
	for i, s := range specs {
		d, err := New(s.ID, s.Kind, s.Room)
		if err != nil {
			return nil, fmt.Errorf("building device %d: %w", i, err)
		}
		NewEnvironment(params, seed+uint64(i)).Attach(d)
		devices = append(devices, d)
	}
	return NewFleet(devices...)
}

// Devices returns the devices in ascending ID order.
// The slice is shared; callers must not reorder it.
func (f *Fleet) Devices() []*Device { return f.ordered }

// Lookup resolves a device by ID.
func (f *Fleet) Lookup(id string) (*Device, bool) {
	d, ok := f.byID[id]
	return d, ok
}

// Len returns the number of devices.
func (f *Fleet) Len() int { return len(f.ordered) }

// Snapshots returns a snapshot of every device in ID order.
func (f *Fleet) Snapshots() []Snapshot {
	out := make([]Snapshot, len(f.ordered))
	for i, d := range f.ordered {
		out[i] = d.Snapshot()
	}
	return out
}

// Clone deep-copies every device. Clones have no environment attached.
func (f *Fleet) Clone() *Fleet {
	c := &Fleet{
		byID:    make(map[string]*Device, len(f.ordered)),
		ordered: make([]*Device, len(f.ordered)),
	}
	for i, d := range f.ordered {
		cd := d.Clone()
		c.byID[cd.id] = cd
		c.ordered[i] = cd
	}
	return c
}

// Registry guards the live fleet.
//
// Writers (the scheduler tick, manual handlers) go through Update, which
// holds an exclusive lock and republishes the read view on return. Readers
// that only display state use View, which never takes the lock and always
// sees the snapshot set committed by the last Update.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	fleet  *Fleet
	view   atomic.Pointer[[]Snapshot]
	logger Logger
}

// NewRegistry wraps a fleet and publishes its initial view.
func NewRegistry(fleet *Fleet) *Registry {
	r := &Registry{fleet: fleet, logger: noopLogger{}}
	r.publish()
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Update runs fn with exclusive access to the live fleet, then publishes a
// fresh view.
func (r *Registry) Update(fn func(f *Fleet)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.fleet)
	r.publish()
}

// UpdateDevice runs fn on a single device under the exclusive lock.
// Returns ErrDeviceNotFound if the ID is unknown, otherwise fn's error.
func (r *Registry) UpdateDevice(id string, fn func(d *Device) error) error {
	var err error
	r.Update(func(f *Fleet) {
		d, ok := f.Lookup(id)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
			return
		}
		err = fn(d)
	})
	return err
}

// Clone returns a private deep copy of the fleet for dry runs.
func (r *Registry) Clone() *Fleet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fleet.Clone()
}

// View returns the last published snapshots in ID order. The returned
// snapshots are copies and may be modified freely.
func (r *Registry) View() []Snapshot {
	published := *r.view.Load()
	out := make([]Snapshot, len(published))
	for i, s := range published {
		out[i] = copyMap(s)
	}
	return out
}

// Snapshot returns the last published snapshot of one device.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	for _, s := range *r.view.Load() {
		if s.DeviceID() == id {
			return copyMap(s), true
		}
	}
	return nil, false
}

// IDs returns the device IDs in ascending order.
func (r *Registry) IDs() []string {
	published := *r.view.Load()
	ids := make([]string, len(published))
	for i, s := range published {
		ids[i] = s.DeviceID()
	}
	return ids
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return len(*r.view.Load())
}

// publish must be called with mu held for writing (or before the registry
// is shared).
func (r *Registry) publish() {
	snaps := r.fleet.Snapshots()
	r.view.Store(&snaps)
	r.logger.Debug("device view published", "count", len(snaps))
}
