package decisionlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Dispatcher.
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

// DefaultSinkTimeout bounds each writer when no timeout is configured.
const DefaultSinkTimeout = 2 * time.Second

type namedWriter struct {
	name string
	w    Writer
}

// Dispatcher is the Sink handed to the decision layers. It stamps each event
// with an ID and timestamp, then fans it out to every registered writer in
// registration order, each bounded by its own timeout. A failing writer is
// logged and never stops the others.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	mu      sync.RWMutex
	writers []namedWriter
	timeout time.Duration
	logger  Logger
	now     func() time.Time
}

var _ Sink = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - timeout: Per-writer deadline (DefaultSinkTimeout when <= 0)
//   - logger: Logger instance (may be nil)
func NewDispatcher(timeout time.Duration, logger Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddWriter registers a destination. The name appears in warning logs.
func (d *Dispatcher) AddWriter(name string, w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, namedWriter{name: name, w: w})
}

// Writers returns the registered writer names in order.
func (d *Dispatcher) Writers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.writers))
	for i, nw := range d.writers {
		names[i] = nw.name
	}
	return names
}

// Append implements Sink.
func (d *Dispatcher) Append(ctx context.Context, e Event) {
	if e.Type == "" {
		d.logger.Warn("dropping decision event", "error", ErrInvalidEvent)
		return
	}
	if e.ID == "" {
		e.ID = GenerateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = d.now()
	}

	d.mu.RLock()
	writers := d.writers
	d.mu.RUnlock()

	for _, nw := range writers {
		if err := d.write(ctx, nw, e); err != nil {
			d.logger.Warn("decision sink write failed",
				"sink", nw.name,
				"event_id", e.ID,
				"type", string(e.Type),
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, nw namedWriter, e Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("writer panicked: %v", r)
		}
	}()
	return nw.w.Write(ctx, e)
}
