package bus

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/weftwork/weft/core/infra/logging"
	"github.com/weftwork/weft/core/workflow"
)

const wsClientBuffer = 100

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub fans workflow lifecycle events out to connected WebSocket clients.
// Publishing never blocks: a client whose buffer is full is dropped.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewWSHub creates an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Publish broadcasts one event to every connected client.
func (h *WSHub) Publish(_ context.Context, evt workflow.Event) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	var slow []*websocket.Conn
	h.mu.RLock()
	for conn, ch := range h.clients {
		select {
		case ch <- data:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, conn := range slow {
			delete(h.clients, conn)
		}
		h.mu.Unlock()
		for _, conn := range slow {
			if err := conn.Close(); err != nil {
				logging.Error("bus", "ws client close failed", "error", err)
			}
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades an HTTP request to a WebSocket and streams events until
// the client disconnects.
func (h *WSHub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("bus", "ws upgrade failed", "error", err)
			return
		}
		defer ws.Close()
		logging.Info("bus", "ws client connected", "remote", r.RemoteAddr)

		ch := make(chan []byte, wsClientBuffer)
		h.mu.Lock()
		h.clients[ws] = ch
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.clients, ws)
			h.mu.Unlock()
		}()

		for {
			select {
			case data, ok := <-ch:
				if !ok {
					return
				}
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
