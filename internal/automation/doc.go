// Package automation implements the per-device threshold policy.
//
// Every tick the scheduler asks the Policy about each device in ID order.
// The hour is classified into a time-of-day bucket (morning, afternoon,
// night by default) and the matching profile decides the desired power:
//
//   - AC: ON when occupied and at or above on_temp, OFF when unoccupied or
//     at or below off_temp. A predicted-energy forecast can shift on_temp.
//   - Fan: follows occupancy unless the bucket disables occupancy control.
//   - Light: ON only when the bucket allows lights, the room is occupied and
//     predicted energy is below the cutoff.
//
// Manually overridden devices are never touched. The policy writes only
// when the desired power differs from the current one and records each
// write in the decision log.
package automation
