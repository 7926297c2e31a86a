package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Filter controls which persisted events to return.
type Filter struct {
	Type     Type   // optional: filter by event type
	DeviceID string // optional: filter by device
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains the paginated event results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository persists decision events for later inspection.
type Repository interface {
	Writer
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores events in the decision_events table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a new decision event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// storedBody is the JSON column holding the fields without their own column.
type storedBody struct {
	TimeOfDay       string         `json:"time_of_day,omitempty"`
	Sensors         map[string]any `json:"sensors,omitempty"`
	NewState        map[string]any `json:"new_state,omitempty"`
	PredictedEnergy *float64       `json:"predicted_energy,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// Write implements Writer. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Write(ctx context.Context, e Event) error {
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = GenerateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(storedBody{
		TimeOfDay:       e.TimeOfDay,
		Sensors:         e.Sensors,
		NewState:        e.NewState,
		PredictedEnergy: e.PredictedEnergy,
		Payload:         e.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshalling event body: %w", err)
	}

	var success any
	if e.Success != nil {
		success = boolToInt(*e.Success)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO decision_events
		 (id, type, device_id, device_type, rule_id, sim_day, sim_hour, explanation, success, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type),
		nullableString(e.DeviceID), nullableString(e.DeviceType), nullableString(e.RuleID),
		e.Day, e.Hour, e.Explanation, success, string(body),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting decision event: %w", err)
	}
	return nil
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM decision_events " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting decision events: %w", err)
	}

	query := "SELECT id, type, device_id, device_type, rule_id, sim_day, sim_hour, explanation, success, payload, created_at " + //nolint:gosec // WHERE built from parameterised conditions
		"FROM decision_events " + where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decision events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decision events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e                            Event
		typ, body, createdAt         string
		deviceID, deviceType, ruleID sql.NullString
		success                      sql.NullInt64
	)
	if err := rows.Scan(&e.ID, &typ, &deviceID, &deviceType, &ruleID,
		&e.Day, &e.Hour, &e.Explanation, &success, &body, &createdAt); err != nil {
		return Event{}, fmt.Errorf("scanning decision event: %w", err)
	}

	e.Type = Type(typ)
	e.DeviceID = deviceID.String
	e.DeviceType = deviceType.String
	e.RuleID = ruleID.String
	if success.Valid {
		e.Success = Bool(success.Int64 != 0)
	}

	var sb storedBody
	if json.Unmarshal([]byte(body), &sb) == nil {
		e.TimeOfDay = sb.TimeOfDay
		e.Sensors = sb.Sensors
		e.NewState = sb.NewState
		e.PredictedEnergy = sb.PredictedEnergy
		e.Payload = sb.Payload
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing decision event timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

// nullableString returns nil for empty strings so optional TEXT columns
// store NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
