package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DefaultTimeout bounds a single remote prediction.
const DefaultTimeout = 2 * time.Second

// maxResponseBytes caps how much of a remote body is read.
const maxResponseBytes = 64 << 10

// Forecaster predicts energy usage for the next tick from an aggregated
// snapshot. Implementations must honour ctx cancellation.
type Forecaster interface {
	Predict(ctx context.Context, in Input) (float64, error)
}

// ─── Linear Model ───────────────────────────────────────────────────────────

// LinearModel is a local forecaster: intercept + coefficients · features.
// Features without a coefficient contribute nothing.
type LinearModel struct {
	intercept float64
	weights   []float64
}

// NewLinearModel builds a model from coefficients keyed by feature name.
//
// Parameters:
//   - intercept: Constant term in kWh
//   - coefficients: Weight per feature name (see FeatureNames)
//
// Returns:
//   - *LinearModel: Ready-to-use model
//   - error: ErrUnknownFeature if a key is not a feature name
func NewLinearModel(intercept float64, coefficients map[string]float64) (*LinearModel, error) {
	index := make(map[string]int, len(FeatureNames))
	for i, name := range FeatureNames {
		index[name] = i
	}

	weights := make([]float64, len(FeatureNames))
	for name, w := range coefficients {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
		weights[i] = w
	}
	return &LinearModel{intercept: intercept, weights: weights}, nil
}

// Predict returns the model output, floored at zero.
func (m *LinearModel) Predict(ctx context.Context, in Input) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return math.Max(0, m.intercept+floats.Dot(m.weights, in.Vector())), nil
}

// ─── HTTP Forecaster ────────────────────────────────────────────────────────

// HTTPForecaster POSTs the Input as JSON and reads {"predicted_energy": x}.
type HTTPForecaster struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPForecaster creates a remote forecaster.
//
// Parameters:
//   - url: Prediction endpoint
//   - timeout: Per-call bound (DefaultTimeout if zero)
//   - client: HTTP client (http.DefaultClient if nil)
func NewHTTPForecaster(url string, timeout time.Duration, client *http.Client) *HTTPForecaster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPForecaster{url: url, timeout: timeout, client: client}
}

type predictResponse struct {
	PredictedEnergy *float64 `json:"predicted_energy"`
}

// Predict calls the remote forecaster.
func (f *HTTPForecaster) Predict(ctx context.Context, in Input) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("encoding forecast input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling forecaster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if out.PredictedEnergy == nil {
		return 0, fmt.Errorf("%w: predicted_energy missing", ErrInvalidResponse)
	}
	v := *out.PredictedEnergy
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: predicted_energy not finite", ErrInvalidResponse)
	}
	return v, nil
}

// New returns the HTTP forecaster when url is set, else the linear model.
func New(url string, timeout time.Duration, intercept float64, coefficients map[string]float64) (Forecaster, error) {
	if url != "" {
		return NewHTTPForecaster(url, timeout, nil), nil
	}
	m, err := NewLinearModel(intercept, coefficients)
	if err != nil {
		return nil, err
	}
	return m, nil
}
