package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/noteflow/noteflow/internal/reconcile"
	"github.com/noteflow/noteflow/internal/schema"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(&Config{
		Port:   0, // OS-assigned port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestServer_Health(t *testing.T) {
	s := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.GetAddr()))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestServer_BroadcastWithoutClients(t *testing.T) {
	s := startTestServer(t)

	// Must not block or panic with nobody listening.
	for i := 0; i < 10; i++ {
		s.Broadcast(Message{Type: MessageTypeToast})
	}
	time.Sleep(50 * time.Millisecond)

	if got := s.ClientCount(); got != 0 {
		t.Errorf("clients = %d, want 0", got)
	}
}

func TestServer_BroadcastReachesClient(t *testing.T) {
	s := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", s.GetAddr()), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatal("client never registered")
	}

	data, _ := json.Marshal(ToastData{Title: "Sync failed", Description: "details"})
	s.Broadcast(Message{Type: MessageTypeToast, Data: data})

	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("failed to parse broadcast: %v", err)
	}
	if msg.Type != MessageTypeToast {
		t.Errorf("type = %s, want %s", msg.Type, MessageTypeToast)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp was not stamped")
	}

	var toast ToastData
	if err := json.Unmarshal(msg.Data, &toast); err != nil {
		t.Fatalf("failed to parse toast data: %v", err)
	}
	if toast.Title != "Sync failed" {
		t.Errorf("title = %q", toast.Title)
	}
}

func TestHandler_Events(t *testing.T) {
	s := startTestServer(t)
	h := NewHandler(s, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", s.GetAddr()), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	now := time.Now().UTC()
	h.TodoCreated(&schema.TodoRecord{
		ID: "todo-1", Content: "Buy milk", CreatedBy: "alice",
		CreatedAt: now, UpdatedAt: now,
	})
	h.TodoUpdated("todo-1", []string{"completed"})
	h.PassComplete(reconcile.Result{Synced: 2, Created: 1, Updated: 1})

	wantTypes := []MessageType{MessageTypeTodoUpdate, MessageTypeTodoUpdate, MessageTypePassComplete}
	for i, want := range wantTypes {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("failed to read event %d: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("failed to parse event %d: %v", i, err)
		}
		if msg.Type != want {
			t.Errorf("event %d type = %s, want %s", i, msg.Type, want)
		}
	}
}
