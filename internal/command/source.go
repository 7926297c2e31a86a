package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds a single remote fetch.
const DefaultTimeout = 3 * time.Second

// DefaultQueueCapacity is used when NewQueue is given a non-positive size.
const DefaultQueueCapacity = 256

const maxResponseBytes = 256 << 10

// Source supplies the commands to apply on a MANUAL tick.
type Source interface {
	Fetch(ctx context.Context) ([]Command, error)
}

// ─── HTTP Source ────────────────────────────────────────────────────────────

// HTTPSource GETs a URL returning {"actions": [...]}.
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPSource creates a remote command source.
//
// Parameters:
//   - url: Endpoint returning the actions envelope
//   - timeout: Per-fetch bound (DefaultTimeout if zero)
//   - client: HTTP client (http.DefaultClient if nil)
func NewHTTPSource(url string, timeout time.Duration, client *http.Client) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, timeout: timeout, client: client}
}

type actionsEnvelope struct {
	Actions []Command `json:"actions"`
}

// Fetch retrieves the current action list.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Command, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building command request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching commands: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var env actionsEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding commands: %w", err)
	}
	return env.Actions, nil
}

// ─── Queue ──────────────────────────────────────────────────────────────────

// Queue holds commands pushed by the API or MQTT until the next MANUAL
// tick drains them.
//
// Thread Safety: all methods are safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	pending  []Command
	capacity int
}

// NewQueue creates an empty queue.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push appends commands. The whole batch is rejected if any command is
// invalid or the queue would overflow.
func (q *Queue) Push(cmds ...Command) error {
	for i, c := range cmds {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("command[%d]: %w", i, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending)+len(cmds) > q.capacity {
		return fmt.Errorf("%w: %d pending, capacity %d", ErrQueueFull, len(q.pending), q.capacity)
	}
	q.pending = append(q.pending, cmds...)
	return nil
}

// Fetch drains the queue in push order.
func (q *Queue) Fetch(context.Context) ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out, nil
}

// HandleMessage decodes an MQTT payload and pushes it. The payload may be
// a single command, a JSON array of commands, or an {"actions": [...]}
// envelope. Its signature matches mqtt.MessageHandler.
func (q *Queue) HandleMessage(topic string, payload []byte) error {
	cmds, err := Decode(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	return q.Push(cmds...)
}

// Decode parses a single command, an array, or an actions envelope.
func Decode(payload []byte) ([]Command, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	if trimmed[0] == '[' {
		var cmds []Command
		if err := json.Unmarshal(trimmed, &cmds); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return cmds, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if _, ok := probe["actions"]; ok {
		var env actionsEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return env.Actions, nil
	}

	var c Command
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return []Command{c}, nil
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ─── Multi ──────────────────────────────────────────────────────────────────

// Multi concatenates several sources in order. A failing source does not
// hide the others' commands; its error is joined into the result.
type Multi []Source

// Fetch calls every source.
func (m Multi) Fetch(ctx context.Context) ([]Command, error) {
	var (
		all  []Command
		errs []error
	)
	for _, s := range m {
		cmds, err := s.Fetch(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, cmds...)
	}
	return all, errors.Join(errs...)
}
