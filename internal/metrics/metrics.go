package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_sim"

// Metrics holds the simulator's Prometheus collectors.
//
// All methods are safe on a nil *Metrics, so components can take an
// optional collector without guarding every call.
type Metrics struct {
	gatherer prometheus.Gatherer

	ticks               *prometheus.CounterVec
	tickDuration        prometheus.Histogram
	ruleFirings         *prometheus.CounterVec
	automationDecisions *prometheus.CounterVec
	manualActions       *prometheus.CounterVec
	forecastFailures    prometheus.Counter
	forecast            prometheus.Gauge
	fleetWatts          prometheus.Gauge
	deviceEnergy        *prometheus.GaugeVec
	simHour             prometheus.Gauge
	simDay              prometheus.Gauge
}

// New registers every collector with reg. Pass prometheus.NewRegistry() in
// tests so registrations do not collide across cases.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks completed, by mode.",
		}, []string{"mode"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent inside one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ruleFirings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_firings_total",
			Help:      "Rule engine actions applied, by rule.",
		}, []string{"rule_id"}),
		automationDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_decisions_total",
			Help:      "Automation policy power changes, by device type and power.",
		}, []string{"device_type", "power"}),
		manualActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_actions_total",
			Help:      "Manual commands executed, by result.",
		}, []string{"result"}),
		forecastFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_failures_total",
			Help:      "Forecaster calls that failed or timed out.",
		}),
		forecast: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "predicted_energy_kwh",
			Help:      "Most recent energy forecast.",
		}),
		fleetWatts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_current_watts",
			Help:      "Sum of current_watts across the fleet.",
		}),
		deviceEnergy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_total_kwh",
			Help:      "Accumulated energy per device.",
		}, []string{"device_id", "device_type"}),
		simHour: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_hour",
			Help:      "Simulated hour of day.",
		}),
		simDay: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_day",
			Help:      "Simulated day.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(mode string, took time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(mode).Inc()
	m.tickDuration.Observe(took.Seconds())
}

// RuleFired counts one applied rule action.
func (m *Metrics) RuleFired(ruleID string) {
	if m == nil {
		return
	}
	m.ruleFirings.WithLabelValues(ruleID).Inc()
}

// AutomationDecision counts one automation power change.
func (m *Metrics) AutomationDecision(deviceType, power string) {
	if m == nil {
		return
	}
	m.automationDecisions.WithLabelValues(deviceType, power).Inc()
}

// ManualAction counts one executed manual command.
func (m *Metrics) ManualAction(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.manualActions.WithLabelValues(result).Inc()
}

// ForecastFailed counts a failed forecaster call.
func (m *Metrics) ForecastFailed() {
	if m == nil {
		return
	}
	m.forecastFailures.Inc()
}

// SetForecast records the latest prediction.
func (m *Metrics) SetForecast(kwh float64) {
	if m == nil {
		return
	}
	m.forecast.Set(kwh)
}

// SetFleetWatts records the fleet's instantaneous draw.
func (m *Metrics) SetFleetWatts(watts float64) {
	if m == nil {
		return
	}
	m.fleetWatts.Set(watts)
}

// SetDeviceEnergy records one device's accumulated energy.
func (m *Metrics) SetDeviceEnergy(deviceID, deviceType string, kwh float64) {
	if m == nil {
		return
	}
	m.deviceEnergy.WithLabelValues(deviceID, deviceType).Set(kwh)
}

// SetClock records the simulated clock.
func (m *Metrics) SetClock(day, hour int) {
	if m == nil {
		return
	}
	m.simDay.Set(float64(day))
	m.simHour.Set(float64(hour))
}
