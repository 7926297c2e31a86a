package mqtt

import (
	"fmt"

	"github.com/nerrad567/gray-logic-sim/internal/device"
)

// JSONPublisher is the subset of Client the state publisher needs.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// StatePublisher publishes device snapshots as retained messages on
// graylogic/sim/device/{id}/state, so a new subscriber sees the latest
// state straight away.
type StatePublisher struct {
	client JSONPublisher
}

// NewStatePublisher creates a StatePublisher on top of a connected client.
func NewStatePublisher(client JSONPublisher) *StatePublisher {
	return &StatePublisher{client: client}
}

// PublishDeviceState publishes one snapshot.
func (p *StatePublisher) PublishDeviceState(snap device.Snapshot) error {
	id := snap.DeviceID()
	if id == "" {
		return fmt.Errorf("%w: snapshot has no device_id", ErrInvalidTopic)
	}
	return p.client.PublishJSON(Topics{}.DeviceState(id), snap, true)
}
