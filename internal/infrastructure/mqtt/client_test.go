package mqtt

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sim/internal/device"
	"github.com/nerrad567/gray-logic-sim/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing. Tests that
// need a broker expect Mosquitto at 127.0.0.1:1883 and skip otherwise.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on 127.0.0.1:1883")
	}
	conn.Close()

	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// ─── Topics ────────────────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Decision", Topics{}.Decision("rule"), "graylogic/sim/decision/rule"},
		{"DeviceState", Topics{}.DeviceState("ac_1"), "graylogic/sim/device/ac_1/state"},
		{"Command", Topics{}.Command(), "graylogic/sim/command"},
		{"Status", Topics{}.Status(), "graylogic/sim/status"},
		{"AllDecisions", Topics{}.AllDecisions(), "graylogic/sim/decision/+"},
		{"AllDeviceStates", Topics{}.AllDeviceStates(), "graylogic/sim/device/+/state"},
		{"AllTopics", Topics{}.AllTopics(), "graylogic/sim/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

// ─── Options ───────────────────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("sim-01")
	cfg.Auth = config.MQTTAuthConfig{Username: "sim", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "sim-01" || opts.Username != "sim" || opts.Password != "secret" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured without cfg.Broker.TLS")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS options = %v / %+v", opts.Servers[0], opts.TLSConfig)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "sim-01")

	if !opts.WillEnabled || opts.WillTopic != "graylogic/sim/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"reason":"unexpected_disconnect"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("sim-01", statusOnline, ""), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Status != statusOnline || msg.ClientID != "sim-01" || msg.Reason != "" || msg.Timestamp == "" {
		t.Errorf("online status = %+v", msg)
	}

	payload := string(statusPayload("sim-01", statusOffline, "graceful_shutdown"))
	if !strings.Contains(payload, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", payload)
	}
}

// ─── Validation (no broker) ────────────────────────────────────────────────────

func TestPublish_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "graylogic/sim/test", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "graylogic/sim/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "graylogic/sim/test", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := &Client{}
	if err := c.PublishJSON("graylogic/sim/test", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("t", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("t") {
		t.Error("failed subscribe was tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

// ─── Handler wrapping ───────────────────────────────────────────────────────

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)
	msg := fakeMessage{topic: "graylogic/sim/command", payload: []byte(`{}`)}

	var got string
	c.wrapHandler(func(topic string, _ []byte) error {
		got = topic
		return nil
	})(nil, msg)
	if got != msg.topic {
		t.Errorf("handler saw topic %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad command") })(nil, msg)
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}
}

// ─── State publisher ────────────────────────────────────────────────────────

type recordingJSON struct {
	topic    string
	value    any
	retained bool
}

func (r *recordingJSON) PublishJSON(topic string, v any, retained bool) error {
	r.topic, r.value, r.retained = topic, v, retained
	return nil
}

func TestStatePublisher(t *testing.T) {
	rec := &recordingJSON{}
	p := NewStatePublisher(rec)

	snap := device.Snapshot{device.KeyDeviceID: "fan_1", device.KeyPower: device.PowerOn}
	if err := p.PublishDeviceState(snap); err != nil {
		t.Fatalf("PublishDeviceState() error = %v", err)
	}
	if rec.topic != "graylogic/sim/device/fan_1/state" || !rec.retained {
		t.Errorf("published to %q retained=%v", rec.topic, rec.retained)
	}

	if err := p.PublishDeviceState(device.Snapshot{}); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("snapshot without id: error = %v", err)
	}
}

// ─── Broker Tests ──────────────────────────────────────────────────────────────

func TestConnect(t *testing.T) {
	client := connectOrSkip(t, "graylogic-sim-test")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.PublishRetained(Topics{}.DeviceState("test-device"), []byte(`{"power":"ON"}`)); err != nil {
		t.Errorf("PublishRetained() error = %v", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "graylogic-sim-test-pub")
	sub := connectOrSkip(t, "graylogic-sim-test-sub")

	received := make(chan string, 4)
	err := sub.Subscribe(Topics{}.AllDecisions(), 1, func(topic string, _ []byte) error {
		received <- topic
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(Topics{}.AllDecisions()) {
		t.Error("subscription not tracked")
	}

	// Give the subscription time to register.
	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(Topics{}.Decision("mode"), map[string]string{"to": "MANUAL"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case topic := <-received:
		if topic != "graylogic/sim/decision/mode" {
			t.Errorf("received on %q", topic)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}

	if err := sub.Unsubscribe(Topics{}.AllDecisions()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after unsubscribe", sub.SubscriptionCount())
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t, "graylogic-sim-test-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish("graylogic/sim/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close() error = %v, want ErrNotConnected", err)
	}
}
