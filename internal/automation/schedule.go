package automation

import (
	"fmt"
	"strings"
)

// Schedule preset names.
const (
	PresetMorningAfternoonNight = "morning_afternoon_night"
	PresetDayEveningNight       = "day_evening_night"
)

// Bucket is a named hour range [Start, End). When End < Start the range
// wraps midnight.
type Bucket struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Contains reports whether hour falls inside the bucket.
func (b Bucket) Contains(hour int) bool {
	if b.Start <= b.End {
		return hour >= b.Start && hour < b.End
	}
	return hour >= b.Start || hour < b.End
}

var presets = map[string][]Bucket{
	PresetMorningAfternoonNight: {
		{Name: "morning", Start: 6, End: 12},
		{Name: "afternoon", Start: 12, End: 18},
		{Name: "night", Start: 18, End: 6},
	},
	PresetDayEveningNight: {
		{Name: "day", Start: 6, End: 18},
		{Name: "evening", Start: 18, End: 22},
		{Name: "night", Start: 22, End: 6},
	},
}

// Schedule classifies simulated hours into time-of-day buckets.
// Buckets are checked in order and the first match wins.
type Schedule struct {
	buckets []Bucket
}

// NewSchedule builds a schedule from custom buckets.
func NewSchedule(buckets []Bucket) (*Schedule, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: no buckets", ErrInvalidSchedule)
	}
	for i, b := range buckets {
		if strings.TrimSpace(b.Name) == "" {
			return nil, fmt.Errorf("%w: bucket[%d] has no name", ErrInvalidSchedule, i)
		}
		if b.Start < 0 || b.Start > 23 || b.End < 0 || b.End > 24 {
			return nil, fmt.Errorf("%w: bucket %q hours outside 0-24", ErrInvalidSchedule, b.Name)
		}
	}
	out := make([]Bucket, len(buckets))
	copy(out, buckets)
	return &Schedule{buckets: out}, nil
}

// PresetSchedule returns a built-in schedule. An empty name selects
// morning_afternoon_night.
func PresetSchedule(name string) (*Schedule, error) {
	if name == "" {
		name = PresetMorningAfternoonNight
	}
	buckets, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return NewSchedule(buckets)
}

// Bucket returns the name of the bucket containing hour, or "" when no
// bucket covers it. Hours outside 0-23 are taken modulo 24.
func (s *Schedule) Bucket(hour int) string {
	hour = ((hour % 24) + 24) % 24
	for _, b := range s.buckets {
		if b.Contains(hour) {
			return b.Name
		}
	}
	return ""
}

// Buckets returns the schedule's buckets in match order.
func (s *Schedule) Buckets() []Bucket {
	out := make([]Bucket, len(s.buckets))
	copy(out, s.buckets)
	return out
}
