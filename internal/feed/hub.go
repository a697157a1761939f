package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apexbay/nftmarket/internal/events"
	"github.com/apexbay/nftmarket/internal/model"
)

// Config controls hub behavior.
type Config struct {
	SendBuffer   int           // Per-client send channel capacity
	PingInterval time.Duration // Interval between pings to each client
	MaxClients   int           // Connection cap; excess upgrades get 503
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   256,
		PingInterval: 30 * time.Second,
		MaxClients:   256,
	}
}

// Stats counts hub activity.
type Stats struct {
	Clients   int   // Currently connected clients
	Served    int64 // Total connections accepted
	Broadcast int64 // Events fanned out
	Evicted   int64 // Slow clients dropped
}

// Hub fans ledger events out to WebSocket clients.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	// Input from the event bus
	sub *events.Subscription

	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]bool
	served  int64
	sent    int64
	evicted int64

	done     chan struct{}
	upgrader websocket.Upgrader
}

// NewHub creates a hub reading from sub.
func NewHub(cfg Config, sub *events.Subscription, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger,
		sub:        sub,
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Public read-only feed
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the hub until ctx is canceled or the subscription closes.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("feed hub started", "max_clients", h.cfg.MaxClients)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.served++
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("feed client connected", "remote", c.remote, "total", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("feed client disconnected", "remote", c.remote, "total", total)

		case ev, ok := <-h.sub.C:
			if !ok {
				return nil
			}
			h.broadcast(ev)
		}
	}
}

// broadcast marshals ev once and fans it out. Clients with full send
// buffers are evicted.
func (h *Hub) broadcast(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", "error", err, "event_id", ev.ID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sent++
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.evicted++
			h.logger.Warn("evicting slow feed client", "remote", c.remote)
		}
	}
}

// shutdown closes every client send channel; their write pumps send a
// close frame and tear the connections down.
func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.logger.Info("feed hub stopped")
}

// ServeWS upgrades an HTTP request and attaches the client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= h.cfg.MaxClients {
		http.Error(w, "feed at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		remote: r.RemoteAddr,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Clients:   len(h.clients),
		Served:    h.served,
		Broadcast: h.sent,
		Evicted:   h.evicted,
	}
}
