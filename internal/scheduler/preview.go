package scheduler

import (
	"context"

	"github.com/nerrad567/gray-logic-sim/internal/automation"
	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/forecast"
	"github.com/nerrad567/gray-logic-sim/internal/rules"
)

// Forecast sources reported by Preview.
const (
	ForecastFromRequest  = "request"
	ForecastFromModel    = "forecaster"
	ForecastNotAvailable = "unavailable"
)

// PreviewRequest holds the hypothetical inputs for a dry run. Nil fields
// fall back to the live clock hour and a fresh forecast.
type PreviewRequest struct {
	Hour     *int
	Forecast *float64
}

// PreviewResult is what a tick would decide, without applying it.
type PreviewResult struct {
	Day             int                     `json:"day"`
	Hour            int                     `json:"hour"`
	TimeOfDay       string                  `json:"time_of_day"`
	Mode            Mode                    `json:"mode"`
	PredictedEnergy *float64                `json:"predicted_energy"`
	ForecastSource  string                  `json:"forecast_source"`
	Automation      []automation.Decision   `json:"automation"`
	Actions         map[string]device.State `json:"actions"`
	Explanations    []rules.Explanation     `json:"explanations"`
}

// Preview runs the automation policy and the rule engine against a private
// clone of the fleet. The live registry is never mutated and no decision
// events are emitted.
//
// Automation decisions are applied to the clones before the rules run, the
// same order a real AUTO tick uses.
func (s *Scheduler) Preview(ctx context.Context, req PreviewRequest) PreviewResult {
	status := s.Status()
	hour := status.Clock.Hour
	if req.Hour != nil {
		hour = ((*req.Hour % 24) + 24) % 24
	}

	fleet := s.deps.Registry.Clone()
	result := PreviewResult{
		Day:            status.Clock.Day,
		Hour:           hour,
		TimeOfDay:      s.policy.Schedule().Bucket(hour),
		Mode:           status.Mode,
		ForecastSource: ForecastNotAvailable,
		Automation:     []automation.Decision{},
	}

	switch {
	case req.Forecast != nil:
		result.PredictedEnergy = copyFloat(req.Forecast)
		result.ForecastSource = ForecastFromRequest
	case s.deps.Forecaster != nil:
		in := forecast.Aggregate(fleet.Snapshots(), hour, s.cfg.ReferenceDevice)
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ForecastTimeout)
		v, err := s.deps.Forecaster.Predict(pctx, in)
		cancel()
		if err != nil {
			s.logger.Warn("preview forecast unavailable", "error", err)
			break
		}
		result.PredictedEnergy = &v
		result.ForecastSource = ForecastFromModel
	}

	for _, d := range fleet.Devices() {
		dec, ok := s.policy.Decide(d, hour, result.PredictedEnergy)
		if !ok {
			continue
		}
		d.ApplyState(dec.Payload(), false)
		result.Automation = append(result.Automation, dec)
	}

	decision := s.deps.Rules.Evaluate(fleet, rules.Inputs{Forecast: result.PredictedEnergy, Hour: &hour})
	result.Actions = decision.Actions
	result.Explanations = decision.Explanations
	if result.Explanations == nil {
		result.Explanations = []rules.Explanation{}
	}
	return result
}
