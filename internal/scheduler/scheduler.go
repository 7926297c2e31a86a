package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-sim/internal/automation"
	"github.com/nerrad567/gray-logic-sim/internal/command"
	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/forecast"
	"github.com/nerrad567/gray-logic-sim/internal/metrics"
	"github.com/nerrad567/gray-logic-sim/internal/rules"
)

// Defaults applied by New when Config leaves a field zero.
const (
	DefaultTickInterval    = 5 * time.Second
	DefaultTickSeconds     = 5.0
	DefaultForecastTimeout = 2 * time.Second
	DefaultCommandTimeout  = 3 * time.Second
	defaultSideTimeout     = 5 * time.Second
)

// Logger defines the logging interface used by the Scheduler.
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

// EnergyRecorder receives per-tick energy telemetry (InfluxDB in production).
type EnergyRecorder interface {
	RecordEnergy(deviceID, deviceType string, watts, totalKWh float64, clock Clock)
	RecordForecast(kwh float64, clock Clock)
}

// StatePublisher pushes device snapshots to subscribers (MQTT in production).
type StatePublisher interface {
	PublishDeviceState(snap device.Snapshot) error
}

// Broadcaster pushes live updates to WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// TickChannel is the hub channel carrying one summary per tick.
const TickChannel = "tick"

// Config holds the scheduler's timing parameters.
type Config struct {
	// TickInterval is the wall-clock pause between ticks.
	TickInterval time.Duration
	// TickSeconds is the simulated time used for energy accrual.
	TickSeconds float64
	// StartHour is the clock hour of the first tick.
	StartHour int
	// StartMode is the initial mode (AUTO if empty).
	StartMode Mode
	// ReferenceDevice feeds ambient readings to the forecaster input.
	ReferenceDevice string

	ForecastTimeout time.Duration
	CommandTimeout  time.Duration
}

// Deps are the scheduler's collaborators. Registry, Policy and Rules are
// required; everything else may be nil.
type Deps struct {
	Registry   *device.Registry
	Policy     *automation.Policy
	Rules      *rules.Engine
	Forecaster forecast.Forecaster
	Commands   command.Source
	Sink       decisionlog.Sink
	History    device.StateHistoryRepository
	Energy     EnergyRecorder
	Publisher  StatePublisher
	Hub        Broadcaster
	Metrics    *metrics.Metrics
	Logger     Logger
}

// Status is the published, lock-free view of the scheduler.
type Status struct {
	Clock        Clock    `json:"clock"`
	Mode         Mode     `json:"mode"`
	Running      bool     `json:"running"`
	Ticks        uint64   `json:"ticks"`
	LastForecast *float64 `json:"last_forecast,omitempty"`
}

// Scheduler is the deterministic tick driver.
//
// One worker goroutine runs ticks back to back. Each tick holds tickMu for
// its whole duration, so SetMode always lands between ticks. The device
// registry's write lock is held only for the sensor-to-energy section.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Scheduler struct {
	cfg    Config
	deps   Deps
	policy *automation.Policy
	batch  *decisionlog.Batch
	logger Logger

	tickMu sync.Mutex
	clock  Clock
	mode   Mode
	ticks  uint64

	status atomic.Pointer[Status]

	started  atomic.Bool
	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a scheduler at day 1, StartHour.
//
// Parameters:
//   - cfg: Timing parameters (zero fields take the package defaults)
//   - deps: Collaborators; Registry, Policy and Rules are required
//
// Returns:
//   - *Scheduler: Ready to Start or Tick
//   - error: ErrMissingDependency or ErrInvalidMode
func New(cfg Config, deps Deps) (*Scheduler, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Policy == nil:
		return nil, fmt.Errorf("%w: automation policy", ErrMissingDependency)
	case deps.Rules == nil:
		return nil, fmt.Errorf("%w: rule engine", ErrMissingDependency)
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = DefaultTickSeconds
	}
	if cfg.ForecastTimeout <= 0 {
		cfg.ForecastTimeout = DefaultForecastTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	mode := ModeAuto
	if cfg.StartMode != "" {
		m, err := ParseMode(string(cfg.StartMode))
		if err != nil {
			return nil, err
		}
		mode = m
	}
	if deps.Sink == nil {
		deps.Sink = decisionlog.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}

	batch := &decisionlog.Batch{}
	s := &Scheduler{
		cfg:    cfg,
		deps:   deps,
		policy: deps.Policy.WithSink(batch),
		batch:  batch,
		logger: deps.Logger,
		clock:  NewClock(cfg.StartHour),
		mode:   mode,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.publishStatus(nil)
	return s, nil
}

// Start launches the worker goroutine. Only the first call has any effect;
// it returns true, and every later call returns false.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}
	s.running.Store(true)
	s.refreshStatus()

	go s.run(ctx)
	s.logger.Info("scheduler started",
		"tick_interval", s.cfg.TickInterval.String(),
		"mode", string(s.Mode()),
	)
	return true
}

// Stop asks the worker to exit. The flag is checked at the top of the
// loop, so a tick in progress completes first.
func (s *Scheduler) Stop() {
	s.running.Store(false)
	s.stopOnce.Do(func() { close(s.stop) })
	s.refreshStatus()
}

// Done is closed when the worker exits. It never closes if Start was
// never called.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Running reports whether the worker loop is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.logger.Info("scheduler stopped")

	timer := time.NewTimer(s.cfg.TickInterval)
	defer timer.Stop()

	for s.running.Load() && ctx.Err() == nil {
		s.Tick(ctx)

		timer.Reset(s.cfg.TickInterval)
		select {
		case <-ctx.Done():
			s.running.Store(false)
		case <-s.stop:
		case <-timer.C:
		}
	}
	s.running.Store(false)
	s.refreshStatus()
}

// Status returns the last published status without blocking on a tick.
func (s *Scheduler) Status() Status {
	st := *s.status.Load()
	if st.LastForecast != nil {
		f := *st.LastForecast
		st.LastForecast = &f
	}
	return st
}

// Mode returns the current mode.
func (s *Scheduler) Mode() Mode { return s.status.Load().Mode }

// Clock returns the current simulated clock.
func (s *Scheduler) Clock() Clock { return s.status.Load().Clock }

// Rules returns the rule engine's rules in evaluation order.
func (s *Scheduler) Rules() []rules.Rule { return s.deps.Rules.Rules() }

// SetMode switches between AUTO and MANUAL. It waits for any tick in
// progress, so a tick never sees the mode change halfway through.
//
// Returns:
//   - bool: true if the mode changed
//   - error: ErrInvalidMode for anything but AUTO or MANUAL
func (s *Scheduler) SetMode(ctx context.Context, mode Mode, source string) (bool, error) {
	m, err := ParseMode(string(mode))
	if err != nil {
		return false, err
	}

	s.tickMu.Lock()
	previous := s.mode
	s.mode = m
	clock := s.clock
	s.tickMu.Unlock()

	if previous == m {
		return false, nil
	}
	s.refreshStatus()

	s.deps.Sink.Append(ctx, decisionlog.Event{
		Type:        decisionlog.TypeMode,
		Day:         clock.Day,
		Hour:        clock.Hour,
		Explanation: fmt.Sprintf("Mode switched from %s to %s", previous, m),
		Payload:     map[string]any{"from": string(previous), "to": string(m), "source": source},
	})
	s.logger.Info("mode changed", "from", string(previous), "to", string(m), "source", source)
	return true, nil
}

// ClearOverride hands a device back to automation.
//
// Returns device.ErrDeviceNotFound for an unknown ID.
func (s *Scheduler) ClearOverride(ctx context.Context, deviceID string) error {
	var (
		snap    device.Snapshot
		state   device.State
		changed bool
	)
	err := s.deps.Registry.UpdateDevice(deviceID, func(d *device.Device) error {
		changed = d.ManualOverride()
		d.ClearManualOverride()
		snap = d.Snapshot()
		state = d.State()
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	clock := s.Clock()
	s.deps.Sink.Append(ctx, decisionlog.Event{
		Type:        decisionlog.TypeOverrideClear,
		DeviceID:    deviceID,
		DeviceType:  string(snap.Kind()),
		Day:         clock.Day,
		Hour:        clock.Hour,
		NewState:    state,
		Explanation: fmt.Sprintf("Manual override cleared on %s; automation resumes", deviceID),
	})
	s.recordHistory(ctx, []device.StateHistoryEntry{{
		DeviceID: deviceID,
		State:    state,
		Source:   device.StateHistorySourceOverrideClear,
		SimDay:   clock.Day,
		SimHour:  clock.Hour,
	}})
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishDeviceState(snap); err != nil {
			s.logger.Warn("publishing device state failed", "device_id", deviceID, "error", err)
		}
	}
	return nil
}

// publishStatus must be called with tickMu held (or before the scheduler
// is shared).
func (s *Scheduler) publishStatus(lastForecast *float64) {
	s.status.Store(&Status{
		Clock:        s.clock,
		Mode:         s.mode,
		Running:      s.running.Load(),
		Ticks:        s.ticks,
		LastForecast: lastForecast,
	})
}

// refreshStatus republishes with the current running flag and mode.
func (s *Scheduler) refreshStatus() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.publishStatus(s.status.Load().LastForecast)
}
