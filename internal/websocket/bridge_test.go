package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

func TestForwardBridgesRegistryEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 16)}
	hub.register <- client

	registry := status.New(status.DefaultGrace)
	stop := Forward(hub, registry)
	defer stop()

	id := registry.Create("Ebooks", "Some Release", models.KindDownload)

	select {
	case msg := <-client.send:
		var update models.ProgressUpdate
		if err := json.Unmarshal(msg, &update); err != nil {
			t.Fatalf("Broadcast payload is not valid JSON: %v", err)
		}
		if update.Event != "created" {
			t.Errorf("Expected a created event, got %q", update.Event)
		}
		if update.OperationID != id {
			t.Errorf("Event carries id %q, want %q", update.OperationID, id)
		}
		if update.Operation.Item != "Some Release" {
			t.Errorf("Event snapshot item = %q", update.Operation.Item)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No broadcast received for a registry event")
	}
}
