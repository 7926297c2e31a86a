package decisionlog

import "context"

// Broadcaster is the WebSocket hub interface.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// ChannelPrefix prefixes the live channel of each event type.
const ChannelPrefix = "decision."

// HubWriter pushes events to live WebSocket subscribers on "decision.{type}".
type HubWriter struct {
	hub Broadcaster
}

var _ Writer = (*HubWriter)(nil)

// NewHubWriter creates a writer broadcasting through hub.
func NewHubWriter(hub Broadcaster) *HubWriter {
	return &HubWriter{hub: hub}
}

// Write implements Writer. Broadcasting never blocks and never fails.
func (h *HubWriter) Write(_ context.Context, e Event) error {
	h.hub.Broadcast(ChannelPrefix+string(e.Type), e)
	return nil
}
