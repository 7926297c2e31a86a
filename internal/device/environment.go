package device

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// EnvironmentParams bounds the simulated environment of one device.
type EnvironmentParams struct {
	InitialTemperature float64
	MinTemperature     float64
	MaxTemperature     float64
	// StepDown and StepUp bound each temperature step (StepDown <= 0 <= StepUp).
	StepDown float64
	StepUp   float64
	// OccupancyFlipProb is the chance per tick that occupancy toggles.
	OccupancyFlipProb float64
}

// DefaultEnvironmentParams matches the reference sensor behaviour.
func DefaultEnvironmentParams() EnvironmentParams {
	return EnvironmentParams{
		InitialTemperature: 28,
		MinTemperature:     16,
		MaxTemperature:     40,
		StepDown:           -0.3,
		StepUp:             0.4,
		OccupancyFlipProb:  0.5,
	}
}

// Environment drives a device's sensors: a bounded random walk of ambient
// temperature (AC only) and occupancy that flips with a fixed probability.
// Each Environment owns its random source so runs are reproducible per seed.
type Environment struct {
	params EnvironmentParams
	walk   distuv.Uniform
	flip   distuv.Bernoulli
}

// NewEnvironment creates an environment seeded with seed.
func NewEnvironment(params EnvironmentParams, seed uint64) *Environment {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	lo, hi := params.StepDown, params.StepUp
	if lo > hi {
		lo, hi = hi, lo
	}
	return &Environment{
		params: params,
		walk:   distuv.Uniform{Min: lo, Max: hi, Src: src},
		flip:   distuv.Bernoulli{P: params.OccupancyFlipProb, Src: src},
	}
}

// Attach seeds the device's readings and wires the environment to it.
func (e *Environment) Attach(d *Device) {
	d.env = e
	if kinds[d.kind].hasTemp {
		d.sensors[KeyAmbientTemperature] = e.clamp(e.params.InitialTemperature)
	}
	if _, ok := d.sensors[KeyOccupancy]; !ok {
		d.sensors[KeyOccupancy] = false
	}
}

func (e *Environment) step(d *Device) {
	if kinds[d.kind].hasTemp {
		t, ok := AsFloat(d.sensors[KeyAmbientTemperature])
		if !ok {
			t = e.params.InitialTemperature
		}
		d.sensors[KeyAmbientTemperature] = e.clamp(round2(t + e.walk.Rand()))
	}

	occupied, _ := AsBool(d.sensors[KeyOccupancy]) //nolint:errcheck // missing reads as unoccupied
	if e.flip.Rand() == 1 {
		occupied = !occupied
	}
	d.sensors[KeyOccupancy] = occupied
}

func (e *Environment) clamp(t float64) float64 {
	return math.Min(math.Max(t, e.params.MinTemperature), e.params.MaxTemperature)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
