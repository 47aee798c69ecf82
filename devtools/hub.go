// Package devtools streams the scheduler's task lifecycle to connected
// websocket clients for live introspection. A single broadcaster
// goroutine owns the client set so no per-connection ticker duplicates
// work, and a shared token-bucket limiter throttles how fast events go
// out the door when many clients are attached at once.
package devtools

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/fluxsched/scheduler/streaming"
	"github.com/fluxsched/scheduler/timeline"
)

const maxConnections = 200

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts published events to every connected client and
// implements streaming.Publisher so it can be wired directly into
// scheduler.Config.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client

	register   chan *client
	unregister chan uuid.UUID
	outbound   chan []byte

	limiter *rate.Limiter
	store   *timeline.Store
	logger  *log.Logger
}

// NewHub returns a Hub that seeds newly connected clients from store and
// logs with logger (log.Default() if nil). The broadcaster is rate
// limited to limitPerSecond events per second with a burst of the same
// size, bounding the cost of a connection storm; a non-positive
// limitPerSecond disables throttling.
func NewHub(store *timeline.Store, logger *log.Logger, limitPerSecond float64) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	limit := rate.Inf
	burst := 1
	if limitPerSecond > 0 {
		limit = rate.Limit(limitPerSecond)
		burst = int(limitPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Hub{
		clients:    make(map[uuid.UUID]*client),
		register:   make(chan *client),
		unregister: make(chan uuid.UUID),
		outbound:   make(chan []byte, 256),
		limiter:    rate.NewLimiter(limit, burst),
		store:      store,
		logger:     logger,
	}
}

// Run drives registration, unregistration, and broadcast until ctx is
// done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case id := <-h.unregister:
			h.removeClient(id)
		case payload := <-h.outbound:
			if err := h.limiter.Wait(ctx); err != nil {
				h.shutdown()
				return
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	if len(h.clients) >= maxConnections {
		h.mu.Unlock()
		c.conn.Close()
		h.logger.Printf("devtools: connection rejected, at capacity (%d)", maxConnections)
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	for _, e := range h.store.Recent(200) {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Seeding must never stall the broadcaster; a client that
			// cannot keep up just gets a shorter history.
			return
		}
	}
}

func (h *Hub) removeClient(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Printf("devtools: dropping event for slow client %s", c.id)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.conn.Close()
		delete(h.clients, id)
	}
}

// Publish implements streaming.Publisher: it stamps the event's ID and
// timestamp if unset and enqueues it for broadcast. It never blocks the
// caller; if the outbound buffer is full the event is dropped.
func (h *Hub) Publish(_ context.Context, e streaming.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	select {
	case h.outbound <- data:
	default:
		h.logger.Printf("devtools: outbound buffer full, dropping event for topic %s", e.Topic)
	}
	return nil
}

// Close implements streaming.Publisher.
func (h *Hub) Close() error {
	return nil
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
