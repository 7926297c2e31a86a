package automation

import (
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/config"
)

// ACProfile holds the AC thresholds for one bucket.
type ACProfile struct {
	OnTemp  float64
	OffTemp float64
}

// FanProfile holds the fan behaviour for one bucket.
type FanProfile struct {
	UseOccupancy bool
}

// LightProfile holds the light behaviour for one bucket.
type LightProfile struct {
	Allow bool
}

// ForecastPolicy shifts the AC on-threshold by predicted energy.
type ForecastPolicy struct {
	Enabled         bool
	LowLimit        float64
	HighLimit       float64
	HighEnergyDelta float64
	LowEnergyDelta  float64
}

// LightForecastPolicy keeps lights off when predicted energy is high.
type LightForecastPolicy struct {
	Enabled          bool
	HighEnergyCutoff float64
}

// Config is everything the Policy needs. Profiles are keyed by bucket name.
type Config struct {
	Schedule      *Schedule
	AC            map[string]ACProfile
	Fan           map[string]FanProfile
	Light         map[string]LightProfile
	Forecast      ForecastPolicy
	LightForecast LightForecastPolicy
}

// ConfigFrom converts the automation section of config.yaml. Custom
// buckets take precedence over the preset.
func ConfigFrom(cfg config.AutomationConfig) (Config, error) {
	var (
		schedule *Schedule
		err      error
	)
	if len(cfg.Schedule.Buckets) > 0 {
		buckets := make([]Bucket, len(cfg.Schedule.Buckets))
		for i, b := range cfg.Schedule.Buckets {
			buckets[i] = Bucket{Name: b.Name, Start: b.Start, End: b.End}
		}
		schedule, err = NewSchedule(buckets)
	} else {
		schedule, err = PresetSchedule(cfg.Schedule.Preset)
	}
	if err != nil {
		return Config{}, err
	}

	out := Config{
		Schedule: schedule,
		AC:       make(map[string]ACProfile, len(cfg.AC)),
		Fan:      make(map[string]FanProfile, len(cfg.Fan)),
		Light:    make(map[string]LightProfile, len(cfg.Light)),
		Forecast: ForecastPolicy{
			Enabled:         cfg.ForecastPolicy.Enabled,
			LowLimit:        cfg.ForecastPolicy.LowLimit,
			HighLimit:       cfg.ForecastPolicy.HighLimit,
			HighEnergyDelta: cfg.ForecastPolicy.HighEnergyDelta,
			LowEnergyDelta:  cfg.ForecastPolicy.LowEnergyDelta,
		},
		LightForecast: LightForecastPolicy{
			Enabled:          cfg.LightForecast.Enabled,
			HighEnergyCutoff: cfg.LightForecast.HighEnergyCutoff,
		},
	}
	for name, p := range cfg.AC {
		out.AC[name] = ACProfile{OnTemp: p.OnTemp, OffTemp: p.OffTemp}
	}
	for name, p := range cfg.Fan {
		out.Fan[name] = FanProfile{UseOccupancy: p.UseOccupancy == nil || *p.UseOccupancy}
	}
	for name, p := range cfg.Light {
		out.Light[name] = LightProfile{Allow: p.Allow}
	}
	return out, nil
}
