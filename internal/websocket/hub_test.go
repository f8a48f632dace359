package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smahi/mirrorbot/internal/models"
)

func TestHubDeliversProgressUpdates(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}
	hub.register <- client

	// The hub goroutine handles channels in order, so the registration is
	// processed before this broadcast.
	hub.BroadcastJSON(models.ProgressUpdate{
		Event:       "updated",
		OperationID: "op-1",
		Operation: models.Operation{
			ID:       "op-1",
			Item:     "Some Release",
			Kind:     models.KindDownload,
			Status:   models.StatusRunning,
			Progress: 0.5,
		},
	})

	select {
	case raw := <-client.send:
		var update models.ProgressUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			t.Fatalf("broadcast payload is not valid JSON: %v", err)
		}
		if update.Event != "updated" || update.OperationID != "op-1" {
			t.Errorf("unexpected payload: %+v", update)
		}
		if update.Operation.Progress != 0.5 {
			t.Errorf("operation progress = %v, want 0.5", update.Operation.Progress)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Client did not receive broadcast message in time")
	}

	// Unregistration closes the client's send channel.
	hub.unregister <- client
	select {
	case _, open := <-client.send:
		if open {
			t.Error("send channel still delivering after unregister")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("send channel was not closed after unregister")
	}
}
