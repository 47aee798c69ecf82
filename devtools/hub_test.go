package devtools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxsched/scheduler/streaming"
	"github.com/fluxsched/scheduler/timeline"
)

func TestHubBroadcastsPublishedEventsToConnectedClients(t *testing.T) {
	store := timeline.NewStore()
	hub := NewHub(store, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForClient(t, hub, 1)

	err = hub.Publish(context.Background(), streaming.Event{Topic: "task-resolved", Priority: "user-blocking"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var decoded streaming.Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Topic != "task-resolved" {
		t.Errorf("topic = %q, want task-resolved", decoded.Topic)
	}
	if decoded.Priority != "user-blocking" {
		t.Errorf("priority = %q, want user-blocking", decoded.Priority)
	}
	if decoded.ID == "" {
		t.Error("Publish must stamp an ID on events that lack one")
	}
}

func waitForClient(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d connected client(s)", n)
}
