package websocket

import (
	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

// Forward subscribes to the registry and rebroadcasts every event to the
// hub's clients. The returned function stops the forwarding.
func Forward(hub *Hub, registry *status.Registry) func() {
	events, unsubscribe := registry.Subscribe(256)
	go func() {
		for ev := range events {
			hub.BroadcastJSON(models.ProgressUpdate{
				Event:       string(ev.Type),
				OperationID: ev.OperationID,
				Operation:   ev.Operation,
			})
		}
	}()
	return unsubscribe
}
