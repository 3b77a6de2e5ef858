package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect cross-origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Replayer supplies recent alerts so a fresh websocket client starts
// with context instead of an empty screen.
type Replayer interface {
	RecentEvents() []Event
}

// HandleWebSocket upgrades an HTTP request to a websocket subscription
// on the hub. Recent alerts from the replayer (if any) are sent before
// live events begin.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, replay Replayer) {
	select {
	case <-h.done:
		http.Error(w, "feed shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	o := h.Subscribe()

	var backlog []Event
	if replay != nil {
		backlog = replay.RecentEvents()
	}

	go h.writePump(conn, o, backlog)
	go h.readPump(conn, o)
}

// writePump drains the observer's feed onto the connection and keeps
// the connection alive with pings.
func (h *Hub) writePump(conn *websocket.Conn, o *Observer, backlog []Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for _, ev := range backlog {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.Unsubscribe(o)
			return
		}
	}

	for {
		select {
		case ev, ok := <-o.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.Unsubscribe(o)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Unsubscribe(o)
				return
			}
		}
	}
}

// readPump discards inbound frames (the feed is one-way) and tears the
// subscription down when the client goes away.
func (h *Hub) readPump(conn *websocket.Conn, o *Observer) {
	defer func() {
		h.Unsubscribe(o)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}
