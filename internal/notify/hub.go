// Package notify streams run events to websocket clients so external UIs
// can follow generation progress live.
package notify

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"docforge/internal/events"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Frame is the outbound wire format: the event's type and run alongside its
// full payload.
type Frame struct {
	Type string       `json:"type"`
	Run  string       `json:"run"`
	Data events.Event `json:"data"`
}

// Hub fans run events out to every connected websocket client. Slow clients
// lose old frames rather than stalling the run.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Frame]struct{}
	done    chan struct{}
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan Frame]struct{}),
		done:    make(chan struct{}),
	}
}

// Forward consumes an event channel (typically Bus.SubscribeAll) and
// broadcasts each event. Returns when the channel closes or the hub shuts
// down.
func (h *Hub) Forward(ch <-chan events.Event) {
	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(Frame{Type: ev.EventType(), Run: ev.RunID(), Data: ev})
		}
	}
}

// Close disconnects all clients. Safe to call more than once.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for ch := range h.clients {
			close(ch)
		}
		h.clients = make(map[chan Frame]struct{})
	})
}

// broadcast delivers a frame to every client without blocking: when a
// client's buffer is full, the oldest frame is dropped to make room.
func (h *Hub) broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- f:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

func (h *Hub) register() (chan Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return nil, false
	default:
	}
	ch := make(chan Frame, 32)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unregister(ch chan Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// HandleWS upgrades the request and streams frames until the client
// disconnects or the hub closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, ok := h.register()
	if !ok {
		return
	}
	defer h.unregister(ch)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("WARNING: websocket set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader loop drains control frames and detects disconnects.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case frame, ok := <-ch:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
