package command

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// Command is one discrete manual action, as produced by a person or an
// LLM-style planner.
type Command struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type,omitempty"`
	Room       string `json:"room,omitempty"`
	Action     string `json:"action"`
	Value      any    `json:"value,omitempty"`
}

// Validate checks the fields every command needs.
func (c Command) Validate() error {
	if strings.TrimSpace(c.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.Action) == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidCommand)
	}
	return nil
}

// Outcome records what happened to one command.
type Outcome struct {
	Command  Command      `json:"command"`
	Success  bool         `json:"success"`
	Error    string       `json:"error,omitempty"`
	NewState device.State `json:"new_state,omitempty"`

	// Err is the underlying error for errors.Is checks; not serialised.
	Err error `json:"-"`
}

// Execute applies commands in order through each device's named-action
// capability. A failure is recorded in that command's Outcome and the
// batch continues.
//
// The caller must hold exclusive access to the devices behind lookup
// (the scheduler calls this inside Registry.Update).
func Execute(lookup device.Lookup, cmds []Command) []Outcome {
	outcomes := make([]Outcome, 0, len(cmds))
	for _, c := range cmds {
		outcomes = append(outcomes, executeOne(lookup, c))
	}
	return outcomes
}

func executeOne(lookup device.Lookup, c Command) Outcome {
	out := Outcome{Command: c}

	err := c.Validate()
	if err == nil {
		err = apply(lookup, c, &out)
	}
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}
	out.Success = true
	return out
}

func apply(lookup device.Lookup, c Command, out *Outcome) error {
	d, ok := lookup.Lookup(c.DeviceID)
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, c.DeviceID)
	}
	if c.DeviceType != "" && !strings.EqualFold(c.DeviceType, string(d.Kind())) {
		return fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, c.DeviceID, d.Kind(), c.DeviceType)
	}
	if err := d.ApplyNamedAction(c.Action, c.Value); err != nil {
		return err
	}
	out.NewState = d.State()
	return nil
}
