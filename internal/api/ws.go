package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one open websocket connection fed by Hub.Broadcast.
type client struct {
	conn *websocket.Conn
	send chan wsMessage
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans "row changed" notifications out to every connected client.
// There is exactly one Store per Hub, so unlike the original project's
// per-LiveQuery subscriber set, a client needs no subscribe message: it
// is subscribed to everything the moment it connects.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*client]struct{})}
}

// Broadcast notifies every connected client that a row changed. It
// matches the ingest.ChangeHook signature so app wiring can pass it
// straight through.
func (h *Hub) Broadcast(kind string, id string) {
	msg := wsMessage{Type: "changed", Data: map[string]string{"kind": kind, "id": id}}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.log.Warn("ws client send buffer full, dropping notification")
		}
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade error", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan wsMessage, 32)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) writePump(cl *client) {
	for msg := range cl.send {
		if err := cl.conn.WriteJSON(msg); err != nil {
			h.log.Warn("ws write error", zap.Error(err))
			cl.conn.Close()
			return
		}
	}
}

// readPump only exists to notice the client going away; this hub is
// push-only, so inbound messages are discarded.
func (h *Hub) readPump(cl *client) {
	defer h.disconnect(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				h.log.Info("ws closed", zap.Int("code", ce.Code))
			} else {
				h.log.Warn("ws read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) disconnect(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	close(cl.send)
	cl.conn.Close()
}
