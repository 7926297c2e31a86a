// Package forecast turns the fleet into a single energy estimate.
//
// Aggregate flattens device snapshots into an Input using fixed fallback
// rules, so it works on partial or oddly typed data. A Forecaster then maps
// the Input to predicted kWh: LinearModel runs locally, HTTPForecaster
// delegates to a remote service.
//
// Callers treat a forecast error as "no forecast" and carry on.
package forecast
