package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPongTimeout  = 60 * time.Second
	watchPingInterval = 50 * time.Second
)

// Hub fans graph change events out to websocket subscribers. Each client
// gets a one-slot mailbox holding only the newest event: watch consumers
// resync by pulling the full graph, so intermediate versions carry no
// information worth queueing for.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*watchClient]struct{}
	closed  bool
}

type watchClient struct {
	conn *websocket.Conn
	send chan WatchEvent
	done chan struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The daemon serves local clients; watch is read-only.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*watchClient]struct{}),
	}
}

// HandleWatch upgrades the request and subscribes it to the change feed
// until the peer hangs up or the hub closes.
func (h *Hub) HandleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		fmt.Printf(`{"level":"error","msg":"watch_upgrade_failed","error":"%v"}`+"\n", err)
		return
	}

	c := &watchClient{
		conn: conn,
		send: make(chan WatchEvent, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	WatchClients.Set(float64(n))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast delivers an event to every subscriber without blocking: a
// slow client's stale mailbox entry is replaced by the newer event.
func (h *Hub) Broadcast(ev WatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- ev:
			default:
			}
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close hangs up on every subscriber. New connections are refused after.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
	WatchClients.Set(0)
}

func (h *Hub) drop(c *watchClient) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	WatchClients.Set(float64(n))
}

func (h *Hub) dropLocked(c *watchClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)
	c.conn.Close()
}

// writeLoop pushes mailbox events and keepalive pings to one client.
func (h *Hub) writeLoop(c *watchClient) {
	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()
	defer h.drop(c)

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop drains control frames so pongs and the peer's close are seen.
// Watch is one-way; any data frame from the peer is ignored.
func (h *Hub) readLoop(c *watchClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(watchPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(watchPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
