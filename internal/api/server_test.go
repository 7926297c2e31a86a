package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-sim/internal/automation"
	"github.com/nerrad567/gray-logic-sim/internal/command"
	"github.com/nerrad567/gray-logic-sim/internal/decisionlog"
	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sim/internal/metrics"
	"github.com/nerrad567/gray-logic-sim/internal/rules"
	"github.com/nerrad567/gray-logic-sim/internal/scheduler"
	_ "github.com/nerrad567/gray-logic-sim/migrations" // registers embedded migrations
)

// testEnv is a server wired to a real scheduler, an in-memory decision log
// and in-memory SQLite repositories.
type testEnv struct {
	srv      *Server
	registry *device.Registry
	sched    *scheduler.Scheduler
	queue    *command.Queue
	ring     *decisionlog.Ring
	history  *device.SQLiteStateHistoryRepository
}

type envOption func(deps *Deps)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testFleet builds ac_1 (30°C, occupied), fan_1 and light_1 with no
// environment attached, so readings stay put.
func testFleet(t *testing.T) *device.Fleet {
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

func testPolicy(t *testing.T) *automation.Policy {
	t.Helper()
	schedule, err := automation.PresetSchedule(automation.PresetMorningAfternoonNight)
	if err != nil {
		t.Fatalf("PresetSchedule: %v", err)
	}
	return automation.NewPolicy(automation.Config{
		Schedule: schedule,
		AC: map[string]automation.ACProfile{
			"morning":   {OnTemp: 26, OffTemp: 22},
			"afternoon": {OnTemp: 24, OffTemp: 20},
			"night":     {OnTemp: 27, OffTemp: 23},
		},
	}, nil, nil)
}

func nightFanOffRule() rules.Rule {
	return rules.Rule{
		ID:          "night_fan_off",
		Description: "Turn fan OFF late at night",
		Priority:    4,
		Enabled:     true,
		When: rules.Condition{
			DeviceType: device.KindFan,
			Clause:     rules.Clause{Sensor: rules.SensorHourOfDay, Op: rules.OpGreaterEqual, Value: 23},
		},
		Then: rules.Action{Kind: rules.ActionSetState, Payload: device.State{device.KeyPower: device.PowerOff}},
	}
}

// newTestEnv creates a Server that has not been started. The hub runs
// until the test ends.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	log := testLogger()
	registry := device.NewRegistry(testFleet(t))
	queue := command.NewQueue(0)
	ring := decisionlog.NewRing(100)
	events := decisionlog.NewSQLiteRepository(db.DB)
	history := device.NewSQLiteStateHistoryRepository(db.DB)

	sink := decisionlog.NewDispatcher(time.Second, nil)
	sink.AddWriter("ring", ring)
	sink.AddWriter("sqlite", events)

	sched, err := scheduler.New(scheduler.Config{
		TickInterval:    time.Hour,
		TickSeconds:     3600,
		StartHour:       14,
		ReferenceDevice: "ac_1",
	}, scheduler.Deps{
		Registry: registry,
		Policy:   testPolicy(t),
		Rules:    rules.NewEngine([]rules.Rule{nightFanOffRule()}, nil),
		Commands: queue,
		Sink:     sink,
		History:  history,
	})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    log,
		Scheduler: sched,
		Registry:  registry,
		Commands:  queue,
		Sink:      sink,
		Ring:      ring,
		Events:    events,
		History:   history,
		Version:   "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)

	return &testEnv{
		srv:      srv,
		registry: registry,
		sched:    sched,
		queue:    queue,
		ring:     ring,
		history:  history,
	}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	var e Error
	decodeBody(t, w, &e)
	if e.Code != code {
		t.Errorf("code = %q, want %q", e.Code, code)
	}
	if e.Status != status {
		t.Errorf("envelope status = %d, want %d", e.Status, status)
	}
}

type fakeBackend struct{ err error }

func (f fakeBackend) HealthCheck(context.Context) error { return f.err }

// ─── Construction ───────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Scheduler: env.sched, Registry: env.registry}},
		{"no scheduler", Deps{Logger: testLogger(), Registry: env.registry}},
		{"no registry", Deps{Logger: testLogger(), Scheduler: env.sched}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Status    string           `json:"status"`
		Version   string           `json:"version"`
		Scheduler scheduler.Status `json:"scheduler"`
		System    SystemMetrics    `json:"system"`
	}
	decodeBody(t, w, &resp)

	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.Scheduler.Mode != scheduler.ModeAuto {
		t.Errorf("scheduler.mode = %q, want AUTO", resp.Scheduler.Mode)
	}
	if resp.System.Devices.Total != 3 {
		t.Errorf("devices.total = %d, want 3", resp.System.Devices.Total)
	}
	if resp.System.Devices.ByType[string(device.KindAC)] != 1 {
		t.Errorf("devices.by_type = %v, want one AC", resp.System.Devices.ByType)
	}
	if resp.System.DecisionLog.Capacity != 100 {
		t.Errorf("decision_log.capacity = %d, want 100", resp.System.DecisionLog.Capacity)
	}
}

func TestHealth_DegradedBackend(t *testing.T) {
	env := newTestEnv(t, func(deps *Deps) {
		deps.Backends = map[string]HealthChecker{
			"mqtt":     fakeBackend{err: errors.New("not connected")},
			"influxdb": fakeBackend{},
		}
	})

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	decodeBody(t, w, &resp)

	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Backends["mqtt"] != "not connected" {
		t.Errorf("backends[mqtt] = %q", resp.Backends["mqtt"])
	}
	if resp.Backends["influxdb"] != "ok" {
		t.Errorf("backends[influxdb] = %q, want ok", resp.Backends["influxdb"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")

	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := newTestEnv(t, func(deps *Deps) {
		deps.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── State Tests ───────────────────────────────────────────────────

func TestListState(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Clock   scheduler.Clock   `json:"clock"`
		Mode    scheduler.Mode    `json:"mode"`
		Devices []device.Snapshot `json:"devices"`
		Count   int               `json:"count"`
	}
	decodeBody(t, w, &resp)

	if resp.Clock != (scheduler.Clock{Day: 1, Hour: 14}) {
		t.Errorf("clock = %+v, want day 1 hour 14", resp.Clock)
	}
	if resp.Mode != scheduler.ModeAuto {
		t.Errorf("mode = %q, want AUTO", resp.Mode)
	}
	if resp.Count != 3 || len(resp.Devices) != 3 {
		t.Fatalf("count = %d, devices = %d, want 3", resp.Count, len(resp.Devices))
	}
	if got := resp.Devices[0].DeviceID(); got != "ac_1" {
		t.Errorf("devices[0] = %q, want ac_1", got)
	}
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"known device", "fan_1", http.StatusOK},
		{"unknown device", "fan_9", http.StatusNotFound},
		{"id too long", strings.Repeat("x", maxQueryParamLen+1), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/state/"+tt.id, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var snap device.Snapshot
			decodeBody(t, w, &snap)
			if snap.DeviceID() != tt.id {
				t.Errorf("device_id = %q, want %q", snap.DeviceID(), tt.id)
			}
			if snap[device.KeyPower] != device.PowerOff {
				t.Errorf("power = %v, want OFF", snap[device.KeyPower])
			}
		})
	}
}

func TestClearOverride(t *testing.T) {
	env := newTestEnv(t)

	err := env.registry.UpdateDevice("fan_1", func(d *device.Device) error {
		d.ApplyState(device.State{device.KeyPower: device.PowerOn}, true)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateDevice: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/v1/devices/fan_1/override/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var snap device.Snapshot
	decodeBody(t, w, &snap)
	if snap[device.KeyManualOverride] != false {
		t.Errorf("manual_override = %v, want false", snap[device.KeyManualOverride])
	}

	events := env.ring.Recent(10)
	if len(events) != 1 || events[0].Type != decisionlog.TypeOverrideClear {
		t.Fatalf("events = %+v, want one override_clear", events)
	}

	entries, err := env.history.GetHistory(context.Background(), "fan_1", 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != device.StateHistorySourceOverrideClear {
		t.Errorf("history = %+v, want one override_clear entry", entries)
	}
}

func TestClearOverride_UnknownDevice(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/devices/ghost/override/clear", "")
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)
}

// ─── Decision Preview Tests ────────────────────────────────────────

func TestDecisionPreview(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/decision?hour=23&forecast=1.5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var res scheduler.PreviewResult
	decodeBody(t, w, &res)

	if res.Hour != 23 {
		t.Errorf("hour = %d, want 23", res.Hour)
	}
	if res.ForecastSource != scheduler.ForecastFromRequest {
		t.Errorf("forecast_source = %q, want %q", res.ForecastSource, scheduler.ForecastFromRequest)
	}
	if res.PredictedEnergy == nil || *res.PredictedEnergy != 1.5 {
		t.Errorf("predicted_energy = %v, want 1.5", res.PredictedEnergy)
	}
	if _, ok := res.Actions["fan_1"]; !ok {
		t.Errorf("actions = %v, want fan_1 from night_fan_off", res.Actions)
	}
	if len(res.Explanations) != 1 || res.Explanations[0].RuleID != "night_fan_off" {
		t.Errorf("explanations = %+v", res.Explanations)
	}

	// A dry run never touches the live fleet.
	snap, _ := env.registry.Snapshot("ac_1")
	if snap[device.KeyPower] != device.PowerOff {
		t.Errorf("live ac_1 power = %v, want OFF", snap[device.KeyPower])
	}
	if env.ring.Len() != 0 {
		t.Errorf("ring len = %d, want 0", env.ring.Len())
	}
}

func TestDecisionPreview_AutomationAtLiveHour(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/decision", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var res scheduler.PreviewResult
	decodeBody(t, w, &res)

	if res.Hour != 14 {
		t.Errorf("hour = %d, want 14", res.Hour)
	}
	if res.ForecastSource != scheduler.ForecastNotAvailable {
		t.Errorf("forecast_source = %q, want %q", res.ForecastSource, scheduler.ForecastNotAvailable)
	}
	found := false
	for _, d := range res.Automation {
		if d.DeviceID == "ac_1" {
			found = true
		}
	}
	if !found {
		t.Errorf("automation = %+v, want a decision for ac_1", res.Automation)
	}
}

func TestDecisionPreview_InvalidParams(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/v1/decision?hour=abc",
		"/api/v1/decision?hour=24",
		"/api/v1/decision?hour=-1",
		"/api/v1/decision?forecast=lots",
	} {
		t.Run(target, func(t *testing.T) {
			w := env.do(t, http.MethodGet, target, "")
			expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
		})
	}
}

// ─── Mode Tests ────────────────────────────────────────────────────

func TestGetMode(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/mode", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Mode scheduler.Mode `json:"mode"`
	}
	decodeBody(t, w, &resp)
	if resp.Mode != scheduler.ModeAuto {
		t.Errorf("mode = %q, want AUTO", resp.Mode)
	}
}

func TestSetMode(t *testing.T) {
	env := newTestEnv(t)

	type modeResp struct {
		Mode    scheduler.Mode `json:"mode"`
		Changed bool           `json:"changed"`
	}

	steps := []struct {
		method  string
		target  string
		body    string
		want    scheduler.Mode
		changed bool
	}{
		{http.MethodPut, "/api/v1/mode", `{"mode":"manual"}`, scheduler.ModeManual, true},
		{http.MethodPut, "/api/v1/mode", `{"mode":"MANUAL"}`, scheduler.ModeManual, false},
		{http.MethodPost, "/api/v1/mode/auto", "", scheduler.ModeAuto, true},
		{http.MethodPost, "/api/v1/mode/manual", "", scheduler.ModeManual, true},
	}
	for i, step := range steps {
		w := env.do(t, step.method, step.target, step.body)
		if w.Code != http.StatusOK {
			t.Fatalf("step %d: status = %d, want 200 (body %s)", i, w.Code, w.Body.String())
		}
		var resp modeResp
		decodeBody(t, w, &resp)
		if resp.Mode != step.want || resp.Changed != step.changed {
			t.Errorf("step %d: got %+v, want mode %s changed %v", i, resp, step.want, step.changed)
		}
	}

	if got := env.sched.Mode(); got != scheduler.ModeManual {
		t.Errorf("scheduler mode = %q, want MANUAL", got)
	}

	// Three real switches, each logged once with the API as source.
	events := env.ring.Recent(10)
	if len(events) != 3 {
		t.Fatalf("mode events = %d, want 3", len(events))
	}
	for _, e := range events {
		if e.Type != decisionlog.TypeMode || e.Payload["source"] != modeSource {
			t.Errorf("event = %+v, want mode event from api", e)
		}
	}
}

func TestSetMode_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   string
	}{
		{"unknown mode in body", http.MethodPut, "/api/v1/mode", `{"mode":"turbo"}`, ErrCodeValidation},
		{"empty mode", http.MethodPut, "/api/v1/mode", `{}`, ErrCodeValidation},
		{"invalid JSON", http.MethodPut, "/api/v1/mode", `{`, ErrCodeBadRequest},
		{"unknown mode in path", http.MethodPost, "/api/v1/mode/turbo", "", ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target, tt.body)
			expectError(t, w, http.StatusBadRequest, tt.code)
		})
	}

	if got := env.sched.Mode(); got != scheduler.ModeAuto {
		t.Errorf("scheduler mode = %q, want AUTO", got)
	}
}

// ─── Command Tests ─────────────────────────────────────────────────

func TestEnqueueCommands(t *testing.T) {
	env := newTestEnv(t)

	body := `{"actions":[
		{"device_id":"ac_1","action":"ON"},
		{"device_id":"fan_1","action":"SET_SPEED","value":3}
	]}`
	w := env.do(t, http.MethodPost, "/api/v1/commands", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		Queued  int `json:"queued"`
		Pending int `json:"pending"`
	}
	decodeBody(t, w, &resp)
	if resp.Queued != 2 || resp.Pending != 2 {
		t.Errorf("queued = %d, pending = %d, want 2 and 2", resp.Queued, resp.Pending)
	}
	if env.queue.Len() != 2 {
		t.Errorf("queue len = %d, want 2", env.queue.Len())
	}
}

func TestEnqueueCommands_AppliedOnManualTick(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.sched.SetMode(context.Background(), scheduler.ModeManual, "test"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	w := env.do(t, http.MethodPost, "/api/v1/commands", `{"device_id":"light_1","action":"ON"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	env.sched.Tick(context.Background())

	snap, _ := env.registry.Snapshot("light_1")
	if snap[device.KeyPower] != device.PowerOn {
		t.Errorf("light_1 power = %v, want ON", snap[device.KeyPower])
	}
	if snap[device.KeyManualOverride] != true {
		t.Errorf("light_1 manual_override = %v, want true", snap[device.KeyManualOverride])
	}
}

func TestEnqueueCommands_Errors(t *testing.T) {
	t.Run("invalid command rejects whole batch", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/api/v1/commands", `[{"device_id":"ac_1","action":"ON"},{"action":"ON"}]`)
		expectError(t, w, http.StatusBadRequest, ErrCodeValidation)
		if env.queue.Len() != 0 {
			t.Errorf("queue len = %d, want 0", env.queue.Len())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/api/v1/commands", `not json`)
		expectError(t, w, http.StatusBadRequest, ErrCodeValidation)
	})

	t.Run("queue full", func(t *testing.T) {
		env := newTestEnv(t, func(deps *Deps) { deps.Commands = command.NewQueue(1) })
		w := env.do(t, http.MethodPost, "/api/v1/commands", `[{"device_id":"ac_1","action":"ON"},{"device_id":"fan_1","action":"ON"}]`)
		expectError(t, w, http.StatusTooManyRequests, ErrCodeQueueFull)
	})

	t.Run("no queue", func(t *testing.T) {
		env := newTestEnv(t, func(deps *Deps) { deps.Commands = nil })
		w := env.do(t, http.MethodPost, "/api/v1/commands", `{"device_id":"ac_1","action":"ON"}`)
		expectError(t, w, http.StatusServiceUnavailable, ErrCodeUnavailable)
	})
}

// ─── Rules Tests ───────────────────────────────────────────────────

func TestListRules(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/rules", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Rules []struct {
			ID   string `json:"rule_id"`
			When struct {
				Operator string `json:"operator"`
			} `json:"when"`
		} `json:"rules"`
		Count int `json:"count"`
	}
	decodeBody(t, w, &resp)

	if resp.Count != 1 || resp.Rules[0].ID != "night_fan_off" {
		t.Fatalf("rules = %+v", resp.Rules)
	}
	if resp.Rules[0].When.Operator != ">=" {
		t.Errorf("operator = %q, want >=", resp.Rules[0].When.Operator)
	}
}

// ─── Decision Log Tests ────────────────────────────────────────────

func TestAppendAndListEvents(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/automation-events",
		`{"device_id":"ac_1","explanation":"Planner asked for pre-cooling"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("append status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}

	var created decisionlog.Event
	decodeBody(t, w, &created)
	if created.Type != decisionlog.TypeExternal {
		t.Errorf("type = %q, want external", created.Type)
	}
	if !strings.HasPrefix(created.ID, "evt-") {
		t.Errorf("id = %q, want evt- prefix", created.ID)
	}
	if created.Day != 1 || created.Hour != 14 {
		t.Errorf("sim clock = %d/%d, want 1/14", created.Day, created.Hour)
	}

	w = env.do(t, http.MethodGet, "/api/v1/events?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("events status = %d, want 200", w.Code)
	}
	var recent struct {
		Events []decisionlog.Event `json:"events"`
		Count  int                 `json:"count"`
	}
	decodeBody(t, w, &recent)
	if recent.Count != 1 || recent.Events[0].ID != created.ID {
		t.Errorf("recent = %+v, want the appended event", recent.Events)
	}

	w = env.do(t, http.MethodGet, "/api/v1/events/history?type=external&device_id=ac_1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", w.Code)
	}
	var history decisionlog.ListResult
	decodeBody(t, w, &history)
	if history.Total != 1 || len(history.Events) != 1 {
		t.Fatalf("history total = %d, events = %d, want 1", history.Total, len(history.Events))
	}
	if history.Events[0].Explanation != "Planner asked for pre-cooling" {
		t.Errorf("explanation = %q", history.Events[0].Explanation)
	}

	w = env.do(t, http.MethodGet, "/api/v1/events/history?type=rule", "")
	decodeBody(t, w, &history)
	if history.Total != 0 {
		t.Errorf("rule history total = %d, want 0", history.Total)
	}
}

func TestRecentEvents_TickOrder(t *testing.T) {
	env := newTestEnv(t)

	for _, mode := range []string{"manual", "auto", "manual"} {
		if w := env.do(t, http.MethodPost, "/api/v1/mode/"+mode, ""); w.Code != http.StatusOK {
			t.Fatalf("set mode %s: status = %d", mode, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/events?limit=2", "")
	var recent struct {
		Events []decisionlog.Event `json:"events"`
	}
	decodeBody(t, w, &recent)

	if len(recent.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(recent.Events))
	}
	if recent.Events[0].Payload["to"] != "AUTO" || recent.Events[1].Payload["to"] != "MANUAL" {
		t.Errorf("events out of order: %v then %v", recent.Events[0].Payload, recent.Events[1].Payload)
	}
}

func TestEvents_InvalidParams(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   string
	}{
		{"negative limit", http.MethodGet, "/api/v1/events?limit=-1", "", ErrCodeBadRequest},
		{"limit too large", http.MethodGet, "/api/v1/events?limit=5000", "", ErrCodeBadRequest},
		{"history bad offset", http.MethodGet, "/api/v1/events/history?offset=x", "", ErrCodeBadRequest},
		{"history limit too large", http.MethodGet, "/api/v1/events/history?limit=500", "", ErrCodeBadRequest},
		{"append invalid JSON", http.MethodPost, "/api/v1/automation-events", `{`, ErrCodeBadRequest},
		{"append without explanation", http.MethodPost, "/api/v1/automation-events", `{"device_id":"ac_1"}`, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target, tt.body)
			expectError(t, w, http.StatusBadRequest, tt.code)
		})
	}
}

func TestEvents_BackendsNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(deps *Deps) {
		deps.Ring = nil
		deps.Events = nil
	})

	for _, target := range []string{"/api/v1/events", "/api/v1/events/history"} {
		w := env.do(t, http.MethodGet, target, "")
		expectError(t, w, http.StatusServiceUnavailable, ErrCodeUnavailable)
	}
}

// ─── Prometheus Tests ──────────────────────────────────────────────

func TestPrometheus(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodGet, "/metrics", "")
		expectError(t, w, http.StatusServiceUnavailable, ErrCodeUnavailable)
	})

	t.Run("enabled", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		m.SetFleetWatts(1500)
		env := newTestEnv(t, func(deps *Deps) { deps.Metrics = m })

		w := env.do(t, http.MethodGet, "/metrics", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), "1500") {
			t.Errorf("exposition missing fleet watts:\n%s", w.Body.String())
		}
	})
}

// ─── Error Mapping Tests ───────────────────────────────────────────

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"device not found", fmt.Errorf("lookup: %w", device.ErrDeviceNotFound), http.StatusNotFound, ErrCodeNotFound},
		{"invalid mode", scheduler.ErrInvalidMode, http.StatusBadRequest, ErrCodeValidation},
		{"invalid command", command.ErrInvalidCommand, http.StatusBadRequest, ErrCodeValidation},
		{"queue full", command.ErrQueueFull, http.StatusTooManyRequests, ErrCodeQueueFull},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDomainError(w, tt.err)
			expectError(t, w, tt.status, tt.code)
		})
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		subs[c] = struct{}{}
	}
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
}

func TestNewHub_AppliesDefaults(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)

	if hub.cfg.MaxMessageSize != defaultWSMaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", hub.cfg.MaxMessageSize, defaultWSMaxMessageSize)
	}
	if hub.cfg.PingInterval != defaultWSPingInterval {
		t.Errorf("PingInterval = %d, want %d", hub.cfg.PingInterval, defaultWSPingInterval)
	}
	if hub.cfg.PongTimeout != defaultWSPongTimeout {
		t.Errorf("PongTimeout = %d, want %d", hub.cfg.PongTimeout, defaultWSPongTimeout)
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	tests := []struct {
		name    string
		subs    []string
		channel string
		want    bool
	}{
		{"exact channel", []string{"decision.rule"}, "decision.rule", true},
		{"wildcard prefix", []string{"decision.*"}, "decision.manual_action", true},
		{"wildcard does not cross prefix", []string{"decision.*"}, "tick", false},
		{"other channel", []string{"tick"}, "decision.rule", false},
		{"no subscriptions", nil, "tick", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(t)
			client := newTestClient(hub, tt.subs...)
			hub.Register(client)

			hub.Broadcast(tt.channel, map[string]any{"device_id": "ac_1"})

			select {
			case msg := <-client.send:
				if !tt.want {
					t.Fatalf("unexpected message %s", msg)
				}
				var wsMsg WSMessage
				if err := json.Unmarshal(msg, &wsMsg); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if wsMsg.Type != WSTypeEvent || wsMsg.EventType != tt.channel {
					t.Errorf("got %s/%s, want event/%s", wsMsg.Type, wsMsg.EventType, tt.channel)
				}
			case <-time.After(100 * time.Millisecond):
				if tt.want {
					t.Error("timed out waiting for broadcast message")
				}
			}
		})
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := newTestClient(hub)
	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_DecisionLogFanOut(t *testing.T) {
	hub := newTestHub(t)
	client := newTestClient(hub, "decision.*")
	hub.Register(client)

	writer := decisionlog.NewHubWriter(hub)
	if err := writer.Write(context.Background(), decisionlog.Event{
		ID:   "evt-1",
		Type: decisionlog.TypeRule,
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != "decision.rule" {
			t.Errorf("event_type = %q, want decision.rule", wsMsg.EventType)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for decision event")
	}
}

// ─── Server Lifecycle Tests ────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	port := 19080
	env := newTestEnv(t, func(deps *Deps) { deps.Config.Port = port })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := env.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := env.srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}

	// Wait for server to be ready
	time.Sleep(100 * time.Millisecond)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start = %v, want nil", err)
	}
}

// ─── WebSocket Integration Tests ───────────────────────────────────

// connectWebSocket serves the router over a real listener and dials /ws.
func connectWebSocket(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	resp := readWS(t, ws)
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	ws := connectWebSocket(t, env)

	subscribe(t, ws, "tick", "decision.*")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{"tick"}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}

	resp := readWS(t, ws)
	if resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Errorf("unsubscribe response = %+v", resp)
	}

	if env.srv.Hub().ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", env.srv.Hub().ClientCount())
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestEnv(t)
	ws := connectWebSocket(t, env)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	resp := readWS(t, ws)
	if resp.Type != WSTypePong {
		t.Errorf("response type = %s, want pong", resp.Type)
	}
	if resp.ID != "ping-1" {
		t.Errorf("response ID = %s, want ping-1", resp.ID)
	}
}

func TestWebSocket_BadMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"invalid JSON", []byte("not json")},
		{"unknown type", []byte(`{"type":"unknown_type","id":"x"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ws := connectWebSocket(t, env)

			if err := ws.WriteMessage(websocket.TextMessage, tt.raw); err != nil {
				t.Fatalf("write: %v", err)
			}

			if resp := readWS(t, ws); resp.Type != WSTypeError {
				t.Errorf("response type = %s, want error", resp.Type)
			}
		})
	}
}

func TestWebSocket_LiveDecisionStream(t *testing.T) {
	env := newTestEnv(t)

	// Route the decision log through the hub, as the binary does.
	sink := decisionlog.NewDispatcher(time.Second, nil)
	sink.AddWriter("hub", decisionlog.NewHubWriter(env.srv.Hub()))
	env.srv.sink = sink

	ws := connectWebSocket(t, env)
	subscribe(t, ws, "decision.*")

	body := `{"type":"external","device_id":"fan_1","explanation":"Occupant left"}`
	if w := env.do(t, http.MethodPost, "/api/v1/automation-events", body); w.Code != http.StatusCreated {
		t.Fatalf("append status = %d, want 201", w.Code)
	}

	msg := readWS(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != "decision.external" {
		t.Fatalf("message = %+v, want decision.external event", msg)
	}

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var e decisionlog.Event
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if e.DeviceID != "fan_1" || e.Explanation != "Occupant left" {
		t.Errorf("event = %+v", e)
	}
}
