package api

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHubBroadcastDeliversToRegisteredClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client

	// Give the Run loop a moment to process the registration.
	deadline := time.After(time.Second)
	for hub.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		default:
		}
	}

	hub.Broadcast("health:updated", map[string]string{"id": "yts"})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Fatal("expected non-empty broadcast payload")
		}
	case <-time.After(time.Second):
		t.Fatal("expected broadcast to reach registered client")
	}
}

func TestHealthBroadcasterAdapterNeverErrors(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	adapter := healthBroadcaster{hub: hub}
	if err := adapter.Broadcast("health:updated", map[string]string{"id": "yts"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
