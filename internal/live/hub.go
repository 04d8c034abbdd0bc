// Package live streams interview turn events to observers over WebSocket.
// Recruiters attach to a session and see utterances, stage changes, and code
// updates as they happen.
package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Event is one observable moment of an interview session.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Text      string    `json:"text,omitempty"`
	Ts        time.Time `json:"ts"`
}

// Event types published by the turn path.
const (
	EventUtterance = "utterance"
	EventStage     = "stage"
	EventCode      = "code"
	EventEnded     = "ended"
)

// subscriberBuffer bounds the per-observer queue. A slow observer loses
// events rather than stalling the turn path.
const subscriberBuffer = 16

// Hub fans interview events out to the observers of each session.
type Hub struct {
	allowedOrigin string
	isDev         bool

	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an observer hub.
func NewHub(allowedOrigin string, isDev bool) *Hub {
	return &Hub{
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		subs:          make(map[string]map[chan Event]struct{}),
	}
}

// Publish delivers an event to every observer of the session. It never
// blocks; observers that cannot keep up miss events.
func (h *Hub) Publish(sessionID string, ev Event) {
	ev.SessionID = sessionID
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Observers returns the number of attached observers for a session.
func (h *Hub) Observers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) subscribe(sessionID string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(sessionID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sessionID], ch)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams the session's
// events until the observer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept observer WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close observer websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	slog.Info("Observer attached", "session_id", sessionID, "ip", r.RemoteAddr)

	ch := h.subscribe(sessionID)
	defer h.unsubscribe(sessionID, ch)

	// Observers only listen. CloseRead surfaces the disconnect as a
	// cancelled context.
	ctx := ws.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			slog.Info("Observer detached", "session_id", sessionID)
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Failed to encode observer event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					slog.Warn("Observer write error", "error", err, "session_id", sessionID)
				}
				return
			}
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Observer origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
