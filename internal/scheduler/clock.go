package scheduler

import (
	"fmt"
	"strings"
)

// Mode selects which decision source may drive devices.
type Mode string

const (
	// ModeAuto runs the automation policy and the rule engine.
	ModeAuto Mode = "AUTO"
	// ModeManual applies commands from the command source only.
	ModeManual Mode = "MANUAL"
)

// ParseMode converts a case-insensitive mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Clock is the simulated time. Day starts at 1; Hour is 0-23.
type Clock struct {
	Day  int `json:"day"`
	Hour int `json:"hour"`
}

// NewClock returns day 1 at startHour (taken modulo 24).
func NewClock(startHour int) Clock {
	return Clock{Day: 1, Hour: ((startHour % 24) + 24) % 24}
}

// Advance returns the clock one hour later, rolling into the next day
// after hour 23.
func (c Clock) Advance() Clock {
	c.Hour++
	if c.Hour > 23 {
		c.Hour = 0
		c.Day++
	}
	return c
}
