package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetwatch/fleetwatch/internal/api"
	"github.com/fleetwatch/fleetwatch/internal/fleet"
	"github.com/fleetwatch/fleetwatch/internal/state"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
// Event is "fleet" (full snapshot, sent on connect) or "transitions"
// (one batch per cycle that detected any).
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub manages WebSocket client connections and pushes each cycle's
// transitions to all of them.
type Hub struct {
	state *state.State

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
// send is never closed; done signals writePump to shut the connection down.
// Closing send instead would race with broadcast's buffered sends.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// New creates a Hub reading on-connect snapshots from st.
func New(st *state.State) *Hub {
	return &Hub{
		state:   st,
		clients: make(map[*client]struct{}),
	}
}

// Publish pushes the cycle's transitions to every connected client.
// Cycles without transitions are not broadcast — the stream is a change-only
// tail. Publish never blocks on a slow client; it satisfies runner.Publisher.
func (h *Hub) Publish(_ *fleet.Snapshot, transitions []fleet.Transition) {
	if len(transitions) == 0 {
		return
	}
	out := make([]api.TransitionResponse, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, api.ToTransitionResponse(tr))
	}
	data, err := json.Marshal(Message{Event: "transitions", Data: out})
	if err != nil {
		return
	}
	h.broadcast(data)
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// It sends the current fleet snapshot immediately on connect, then forwards
// transition broadcasts. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
	}

	// Queue the current fleet view before registering so a new client
	// always sees it ahead of any transition broadcast. The client is not
	// yet registered, so the buffer is guaranteed empty and this cannot
	// block or drop.
	if data, err := h.fleetMessage(); err == nil {
		c.send <- data
	}

	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister removes c from the hub and signals its writePump to exit.
// Safe to call more than once; only the first call closes done.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	// send is never closed, so racing a concurrent disconnect here is
	// harmless: the buffered message is simply never drained.
	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			// Client's outgoing buffer is full — disconnect it.
			h.unregister(c)
		}
	}
}

// fleetMessage builds the on-connect snapshot envelope.
func (h *Hub) fleetMessage() ([]byte, error) {
	snap, _, _ := h.state.Fleet()
	entities := make([]api.EntityResponse, 0, snap.Len())
	for _, e := range snap.Entities() {
		entities = append(entities, api.EntityResponse{
			Entity:  string(e.ID),
			RateBPS: e.RateBPS,
			Status:  e.Status,
		})
	}
	return json.Marshal(Message{Event: "fleet", Data: entities})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.done)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-c.done:
			// Hub is shutting down or the client was removed.
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
