package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sim/internal/automation"
	"github.com/nerrad567/gray-logic-sim/internal/command"
	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/forecast"
	"github.com/nerrad567/gray-logic-sim/internal/rules"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

type recordingSink struct {
	mu     sync.Mutex
	events []decisionlog.Event
}

func (s *recordingSink) Append(_ context.Context, e decisionlog.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) ofType(typ decisionlog.Type) []decisionlog.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []decisionlog.Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type forecasterFunc func(ctx context.Context, in forecast.Input) (float64, error)

func (f forecasterFunc) Predict(ctx context.Context, in forecast.Input) (float64, error) {
	return f(ctx, in)
}

func fixedForecast(v float64) forecast.Forecaster {
	return forecasterFunc(func(context.Context, forecast.Input) (float64, error) { return v, nil })
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []device.StateHistoryEntry
}

func (h *memoryHistory) RecordStateChange(_ context.Context, e device.StateHistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *memoryHistory) GetHistory(_ context.Context, deviceID string, _ int) ([]device.StateHistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []device.StateHistoryEntry
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].DeviceID == deviceID {
			out = append(out, h.entries[i])
		}
	}
	return out, nil
}

type energyCall struct {
	deviceID string
	kwh      float64
	clock    Clock
}

type recordingEnergy struct {
	mu        sync.Mutex
	energy    []energyCall
	forecasts []float64
}

func (r *recordingEnergy) RecordEnergy(deviceID, _ string, _, kwh float64, clock Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.energy = append(r.energy, energyCall{deviceID: deviceID, kwh: kwh, clock: clock})
}

func (r *recordingEnergy) RecordForecast(kwh float64, _ Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts = append(r.forecasts, kwh)
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []device.Snapshot
}

func (p *recordingPublisher) PublishDeviceState(snap device.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

type recordingHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *recordingHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append(h.channels, channel)
}

// ─── Fixtures ───────────────────────────────────────────────────────────────

const afternoon = 14

type fixture struct {
	s        *Scheduler
	registry *device.Registry
	sink     *recordingSink
	queue    *command.Queue
}

// newFleet builds ac_1 (30°C, occupied), fan_1 and light_1 with no
// environment attached, so readings stay put between ticks.
func newFleet(t *testing.T) *device.Fleet {
	t.Helper()
	ac, err := device.New("ac_1", device.KindAC, "living_room")
	if err != nil {
		t.Fatalf("device.New(ac_1): %v", err)
	}
	ac.SetSensor(device.KeyAmbientTemperature, 30.0)
	ac.SetSensor(device.KeyOccupancy, true)

	fan, err := device.New("fan_1", device.KindFan, "living_room")
	if err != nil {
		t.Fatalf("device.New(fan_1): %v", err)
	}
	light, err := device.New("light_1", device.KindLight, "living_room")
	if err != nil {
		t.Fatalf("device.New(light_1): %v", err)
	}

	fleet, err := device.NewFleet(ac, fan, light)
	if err != nil {
		t.Fatalf("device.NewFleet: %v", err)
	}
	return fleet
}

func testPolicyConfig(t *testing.T) automation.Config {
	t.Helper()
	schedule, err := automation.PresetSchedule(automation.PresetMorningAfternoonNight)
	if err != nil {
		t.Fatalf("PresetSchedule: %v", err)
	}
	return automation.Config{
		Schedule: schedule,
		AC: map[string]automation.ACProfile{
			"morning":   {OnTemp: 26, OffTemp: 22},
			"afternoon": {OnTemp: 24, OffTemp: 20},
			"night":     {OnTemp: 27, OffTemp: 23},
		},
		Fan: map[string]automation.FanProfile{
			"morning":   {UseOccupancy: true},
			"afternoon": {UseOccupancy: true},
			"night":     {UseOccupancy: false},
		},
		Light: map[string]automation.LightProfile{
			"night": {Allow: true},
		},
		Forecast: automation.ForecastPolicy{
			Enabled: true, LowLimit: 2, HighLimit: 4.5, HighEnergyDelta: 2, LowEnergyDelta: -1,
		},
		LightForecast: automation.LightForecastPolicy{Enabled: true, HighEnergyCutoff: 4.5},
	}
}

// newFixture builds a scheduler at afternoon with no rules and no
// forecaster. mutate may adjust the config and deps before New.
func newFixture(t *testing.T, mutate func(cfg *Config, deps *Deps)) *fixture {
	t.Helper()
	registry := device.NewRegistry(newFleet(t))
	sink := &recordingSink{}
	queue := command.NewQueue(0)

	cfg := Config{
		TickInterval:    10 * time.Millisecond,
		TickSeconds:     3600,
		StartHour:       afternoon,
		ReferenceDevice: "ac_1",
	}
	deps := Deps{
		Registry: registry,
		Policy:   automation.NewPolicy(testPolicyConfig(t), nil, nil),
		Rules:    rules.NewEngine(nil, nil),
		Commands: queue,
		Sink:     sink,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	s, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{s: s, registry: registry, sink: sink, queue: queue}
}

func (f *fixture) snapshot(t *testing.T, id string) device.Snapshot {
	t.Helper()
	snap, ok := f.registry.Snapshot(id)
	if !ok {
		t.Fatalf("device %s not in registry", id)
	}
	return snap
}

func acOccupiedOffRule() rules.Rule {
	return rules.Rule{
		ID:          "occupied_ac_off",
		Description: "Keep the AC off whenever someone is home",
		Priority:    10,
		Enabled:     true,
		When: rules.Condition{
			DeviceType: device.KindAC,
			Clause:     rules.Clause{Sensor: device.KeyOccupancy, Op: rules.OpEqual, Value: true},
		},
		Then: rules.Action{Kind: rules.ActionSetState, Payload: device.State{device.KeyPower: device.PowerOff}},
	}
}

func ptr[T any](v T) *T { return &v }
