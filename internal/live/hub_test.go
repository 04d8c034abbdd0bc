package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

func waitForObservers(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Observers(sessionID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("observer count for %s never reached %d", sessionID, want)
}

func TestObserverReceivesPublishedEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub("*", true)
	r := chi.NewRouter()
	r.Get("/watch/{sessionID}", hub.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/watch/sess-1", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	waitForObservers(t, hub, "sess-1", 1)

	hub.Publish("sess-1", Event{Type: EventUtterance, Speaker: "interviewer", Text: "Hello!"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	if got.Type != EventUtterance || got.Text != "Hello!" || got.SessionID != "sess-1" {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.Ts.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestPublishIsScopedToSession(t *testing.T) {
	t.Parallel()

	hub := NewHub("*", true)
	r := chi.NewRouter()
	r.Get("/watch/{sessionID}", hub.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/watch/sess-a", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	waitForObservers(t, hub, "sess-a", 1)

	hub.Publish("sess-b", Event{Type: EventStage, Stage: "CODING"})
	hub.Publish("sess-a", Event{Type: EventEnded})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	if got.Type != EventEnded || got.SessionID != "sess-a" {
		t.Errorf("observer saw wrong event: %+v", got)
	}
}

func TestPublishWithoutObserversDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := NewHub("*", true)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("nobody", Event{Type: EventCode})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no observers")
	}
}
