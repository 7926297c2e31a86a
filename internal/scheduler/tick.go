package scheduler

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/nerrad567/gray-logic-sim/internal/automation"
	"github.com/nerrad567/gray-logic-sim/internal/command"
	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/forecast"
	"github.com/nerrad567/gray-logic-sim/internal/rules"
)

// TickReport summarises one tick. Day and Hour are the clock the tick ran
// at, before it advanced.
type TickReport struct {
	Day        int                     `json:"day"`
	Hour       int                     `json:"hour"`
	TimeOfDay  string                  `json:"time_of_day"`
	Mode       Mode                    `json:"mode"`
	Forecast   *float64                `json:"predicted_energy,omitempty"`
	Automation []automation.Decision   `json:"automation,omitempty"`
	Rules      rules.Decision          `json:"rules"`
	Applied    []string                `json:"applied,omitempty"`
	Manual     []command.Outcome       `json:"manual,omitempty"`
	FleetWatts float64                 `json:"fleet_watts"`
	Changed    []string                `json:"changed,omitempty"`
	Next       Clock                   `json:"next"`
	Duration   time.Duration           `json:"-"`
	states     map[string]device.State // post-tick state of changed devices
}

// Tick runs one full tick:
//
//  1. UpdateSensors on every device
//  2. aggregate and forecast (an error means no forecast)
//  3. AUTO: automation per device, then rules; MANUAL: drain commands
//  4. UpdateEnergy on every device
//  5. advance the clock
//
// Steps 1-4 run inside a single Registry.Update. Decision events gathered
// during the tick are delivered after the registry lock is released.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	clock, mode := s.clock, s.mode
	report := TickReport{
		Day:       clock.Day,
		Hour:      clock.Hour,
		TimeOfDay: s.policy.Schedule().Bucket(clock.Hour),
		Mode:      mode,
		Rules:     rules.Decision{Actions: map[string]device.State{}},
	}

	sources := make(map[string]string)
	s.deps.Registry.Update(func(f *device.Fleet) {
		for _, d := range f.Devices() {
			d.UpdateSensors()
		}

		in := forecast.Aggregate(f.Snapshots(), clock.Hour, s.cfg.ReferenceDevice)
		report.Forecast = s.predict(ctx, in)

		before := make(map[string]device.State, f.Len())
		for _, d := range f.Devices() {
			before[d.ID()] = d.State()
		}

		switch mode {
		case ModeManual:
			s.runManual(ctx, f, clock, &report, sources)
		default:
			s.runAuto(ctx, f, clock, &report, sources)
		}

		report.states = make(map[string]device.State)
		for _, d := range f.Devices() {
			d.UpdateEnergy(s.cfg.TickSeconds)
			report.FleetWatts += d.Energy().CurrentWatts

			after := d.State()
			if !maps.Equal(before[d.ID()], after) {
				report.Changed = append(report.Changed, d.ID())
				report.states[d.ID()] = after
			}
		}
	})

	s.clock = s.clock.Advance()
	s.ticks++
	report.Next = s.clock
	s.publishStatus(report.Forecast)

	s.batch.FlushTo(ctx, s.deps.Sink)
	s.afterTick(ctx, &report, sources)

	report.Duration = time.Since(start)
	s.deps.Metrics.ObserveTick(string(mode), report.Duration)
	s.logger.Debug("tick complete",
		"day", report.Day,
		"hour", report.Hour,
		"mode", string(mode),
		"changed", len(report.Changed),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}

// predict calls the forecaster under its timeout. Any failure yields nil.
func (s *Scheduler) predict(ctx context.Context, in forecast.Input) *float64 {
	if s.deps.Forecaster == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ForecastTimeout)
	defer cancel()

	v, err := s.deps.Forecaster.Predict(ctx, in)
	if err != nil {
		s.deps.Metrics.ForecastFailed()
		s.logger.Warn("forecast unavailable", "error", err)
		return nil
	}
	s.deps.Metrics.SetForecast(v)
	return &v
}

// runAuto runs the automation policy per device in ID order, then the rule
// engine. Rule payloads are applied last and win over automation.
func (s *Scheduler) runAuto(ctx context.Context, f *device.Fleet, clock Clock, report *TickReport, sources map[string]string) {
	for _, d := range f.Devices() {
		dec, ok := s.policy.Evaluate(ctx, d, clock.Day, clock.Hour, report.Forecast)
		if !ok {
			continue
		}
		report.Automation = append(report.Automation, dec)
		sources[d.ID()] = device.StateHistorySourceAutomation
		s.deps.Metrics.AutomationDecision(string(dec.DeviceType), dec.Power)
	}

	hour := clock.Hour
	decision := s.deps.Rules.Evaluate(f, rules.Inputs{Forecast: report.Forecast, Hour: &hour})
	report.Rules = decision
	report.Applied = s.deps.Rules.Apply(decision, f)

	for _, ex := range decision.Explanations {
		d, ok := f.Lookup(ex.DeviceID)
		if !ok {
			continue
		}
		sources[d.ID()] = device.StateHistorySourceRule
		s.deps.Metrics.RuleFired(ex.RuleID)
		s.batch.Append(ctx, decisionlog.Event{
			Type:            decisionlog.TypeRule,
			DeviceID:        d.ID(),
			DeviceType:      string(d.Kind()),
			RuleID:          ex.RuleID,
			Day:             clock.Day,
			Hour:            clock.Hour,
			TimeOfDay:       report.TimeOfDay,
			Sensors:         d.Sensors(),
			NewState:        d.State(),
			PredictedEnergy: copyFloat(report.Forecast),
			Explanation:     ex.Reason,
			Payload:         map[string]any{"action": decision.Actions[d.ID()]},
		})
	}
}

// runManual drains the command source and applies every command. A failed
// command is logged and recorded; the rest of the batch still runs.
func (s *Scheduler) runManual(ctx context.Context, f *device.Fleet, clock Clock, report *TickReport, sources map[string]string) {
	if s.deps.Commands == nil {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	cmds, err := s.deps.Commands.Fetch(fetchCtx)
	cancel()
	if err != nil {
		s.logger.Warn("command source failed", "error", err)
	}
	if len(cmds) == 0 {
		return
	}

	report.Manual = command.Execute(f, cmds)
	for _, o := range report.Manual {
		s.deps.Metrics.ManualAction(o.Success)

		e := decisionlog.Event{
			Type:      decisionlog.TypeManualAction,
			DeviceID:  o.Command.DeviceID,
			Day:       clock.Day,
			Hour:      clock.Hour,
			TimeOfDay: report.TimeOfDay,
			Success:   decisionlog.Bool(o.Success),
			Payload: map[string]any{
				"action": o.Command.Action,
				"value":  o.Command.Value,
			},
		}
		if d, ok := f.Lookup(o.Command.DeviceID); ok {
			e.DeviceType = string(d.Kind())
		} else {
			e.DeviceType = o.Command.DeviceType
		}

		if o.Success {
			sources[o.Command.DeviceID] = device.StateHistorySourceManual
			e.NewState = o.NewState
			e.Explanation = fmt.Sprintf("manual_action %s applied to %s", o.Command.Action, o.Command.DeviceID)
		} else {
			e.Payload["error"] = o.Error
			e.Explanation = "manual_action failed: " + o.Error
			s.logger.Warn("manual action failed",
				"device_id", o.Command.DeviceID,
				"action", o.Command.Action,
				"error", o.Err,
			)
		}
		s.batch.Append(ctx, e)
	}
}

// afterTick fans the tick out to history, telemetry, MQTT, metrics and the
// WebSocket hub. Failures here are logged and never affect the tick.
func (s *Scheduler) afterTick(ctx context.Context, report *TickReport, sources map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, defaultSideTimeout)
	defer cancel()

	entries := make([]device.StateHistoryEntry, 0, len(report.Changed))
	for _, id := range report.Changed {
		source := sources[id]
		if source == "" {
			source = device.StateHistorySourceAutomation
		}
		entries = append(entries, device.StateHistoryEntry{
			DeviceID: id,
			State:    report.states[id],
			Source:   source,
			SimDay:   report.Day,
			SimHour:  report.Hour,
		})
	}
	s.recordHistory(ctx, entries)

	view := s.deps.Registry.View()
	clock := Clock{Day: report.Day, Hour: report.Hour}
	for _, snap := range view {
		watts, _ := device.AsFloat(snap[device.KeyCurrentWatts]) //nolint:errcheck // always set
		kwh, _ := device.AsFloat(snap[device.KeyTotalKWh])       //nolint:errcheck // always set

		if s.deps.Energy != nil {
			s.deps.Energy.RecordEnergy(snap.DeviceID(), string(snap.Kind()), watts, kwh, clock)
		}
		if s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishDeviceState(snap); err != nil {
				s.logger.Warn("publishing device state failed", "device_id", snap.DeviceID(), "error", err)
			}
		}
		s.deps.Metrics.SetDeviceEnergy(snap.DeviceID(), string(snap.Kind()), kwh)
	}
	if s.deps.Energy != nil && report.Forecast != nil {
		s.deps.Energy.RecordForecast(*report.Forecast, clock)
	}
	s.deps.Metrics.SetFleetWatts(report.FleetWatts)
	s.deps.Metrics.SetClock(report.Next.Day, report.Next.Hour)

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(TickChannel, map[string]any{
			"day":              report.Day,
			"hour":             report.Hour,
			"time_of_day":      report.TimeOfDay,
			"mode":             string(report.Mode),
			"predicted_energy": report.Forecast,
			"fleet_watts":      report.FleetWatts,
			"changed":          report.Changed,
			"devices":          view,
		})
	}
}

func (s *Scheduler) recordHistory(ctx context.Context, entries []device.StateHistoryEntry) {
	if s.deps.History == nil {
		return
	}
	for _, e := range entries {
		if err := s.deps.History.RecordStateChange(ctx, e); err != nil {
			s.logger.Warn("recording state history failed", "device_id", e.DeviceID, "error", err)
		}
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
