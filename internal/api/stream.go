package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/relaycode/taskserver/internal/task/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// graceInterval and graceAttempts bound the wait for a task id to appear
	// in the registry after the stream connects first, covering the race
	// between a client opening the stream and its submit request landing.
	graceInterval = 250 * time.Millisecond
	graceAttempts = 8 // 8 * 250ms = 2s, comfortably above the 1s floor
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamTask handles the stream endpoint: it upgrades the connection,
// waits out the submit/stream race, subscribes to the task's event queue,
// and forwards events until a terminal event or client disconnect.
func (h *Handlers) StreamTask(c *gin.Context) {
	taskID := c.Param("task_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID, err := h.awaitRegistration(taskID)
	if err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, "task not found within grace window")
		return
	}

	sess, err := h.manager.GetSession(sessionID)
	if err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, "session not found")
		return
	}

	events, err := sess.Bus().Subscribe(taskID)
	if err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, "failed to subscribe to task stream")
		return
	}
	defer sess.Bus().Unsubscribe(taskID)

	h.pump(conn, events)
}

// awaitRegistration polls the registry for taskID across a bounded grace
// window, returning its owning session id once found.
func (h *Handlers) awaitRegistration(taskID string) (string, error) {
	for attempt := 0; attempt < graceAttempts; attempt++ {
		if sessionID, err := h.registry.SessionID(taskID); err == nil {
			return sessionID, nil
		}
		time.Sleep(graceInterval)
	}
	return h.registry.SessionID(taskID)
}

// pump forwards events to the client, interleaving periodic pings, and
// returns on the first terminal event, a closed event channel, or a failed
// write (which is how a client disconnect surfaces here).
func (h *Handlers) pump(conn *websocket.Conn, events <-chan models.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go h.drainClientReads(conn)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				h.closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
			if err := h.writeEvent(conn, event); err != nil {
				return
			}
			if event.IsTerminal() {
				h.closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainClientReads discards inbound client frames (this stream is
// server-to-client only) and keeps pong deadlines current; its exit on
// client disconnect or protocol error is not itself treated as fatal by
// pump, which keys termination off the event channel and writes instead.
func (h *Handlers) drainClientReads(conn *websocket.Conn) {
	conn.SetReadLimit(1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handlers) writeEvent(conn *websocket.Conn, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Warn("failed to marshal event for stream")
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handlers) closeWith(conn *websocket.Conn, closeCode int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, reason), deadline)
}
