package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maauso/freecut/internal/session"
)

const (
	// eventBuffer is how many events may queue for a slow client before
	// new ones are dropped.
	eventBuffer = 64
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
)

// Message types only the events stream sends or accepts.
const (
	msgSnapshot = "snapshot"
	msgKey      = "key"
	msgError    = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventMessage is a session event as sent to the browser.
type eventMessage struct {
	session.Event
	Export  *JobResponse     `json:"export,omitempty"`
	Session *SessionResponse `json:"session,omitempty"`
	Code    string           `json:"code,omitempty"`
}

// clientMessage is sent from the browser, e.g. {"type":"key","key":"ArrowLeft"}.
type clientMessage struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// Events handles GET /sessions/{id}/events. It upgrades to a WebSocket,
// sends a snapshot, then streams session events. Key presses sent by the
// client are applied to the session.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	logger := h.logger.With(slog.String("session_id", s.ID()))
	out := make(chan eventMessage, eventBuffer)
	unsubscribe := s.Subscribe(func(ev session.Event) {
		msg := eventMessage{Event: ev}
		if ev.Export != nil {
			j := toJobResponse(s.ID(), ev.Export)
			msg.Export = &j
		}
		select {
		case out <- msg:
		default:
			logger.Debug("dropping event for slow client", slog.String("type", string(ev.Type)))
		}
	})
	defer unsubscribe()

	snap := h.snapshot(r, s)
	out <- eventMessage{Event: session.Event{Type: msgSnapshot}, Session: &snap}

	done := make(chan struct{})
	var wg sync.WaitGroup

	// session -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case msg := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					logger.Debug("websocket write failed", slog.String("error", err.Error()))
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// WebSocket -> session
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				// Client disconnected
				return
			}
			var msg clientMessage
			if json.Unmarshal(data, &msg) != nil || msg.Type != msgKey {
				continue
			}
			if err := s.HandleKey(r.Context(), msg.Key); err != nil {
				status, code := statusFor(err)
				logger.Debug("websocket key rejected",
					slog.String("key", msg.Key),
					slog.Int("status", status),
					slog.String("error", err.Error()),
				)
				select {
				case out <- eventMessage{Event: session.Event{Type: msgError, Error: err.Error()}, Code: code}:
				default:
				}
			}
		}
	}()

	wg.Wait()
	logger.Debug("event stream closed")
}
