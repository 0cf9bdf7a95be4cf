// Package realtime streams wallet assessment events over WebSocket.
//
// Clients connect to /ws and receive every event by default. Sending a
// Subscription JSON message narrows the stream to specific event types,
// wallets, or a minimum risk score; the hub answers with a "subscribed"
// event echoing the filter it applied.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/safescore/internal/metrics"
)

// DefaultMaxClients caps concurrent connections unless WithMaxClients is set.
const DefaultMaxClients = 10000

// Hub fans events out to connected clients.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run exits

	mu         sync.RWMutex
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	origins    []string
	maxClients int

	events    atomic.Int64
	connects  atomic.Int64
	peak      atomic.Int64
	dropped   atomic.Int64
	slowKicks atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMaxClients caps concurrent connections.
func WithMaxClients(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxClients = n
		}
	}
}

// WithAllowedOrigins lists browser origins allowed to connect besides the
// server's own host. "*" allows any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) { h.origins = origins }
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *Event, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		maxClients: DefaultMaxClients,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // not a browser
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	return slices.ContainsFunc(h.origins, func(o string) bool {
		return o == "*" || strings.EqualFold(o, origin)
	})
}

// Run owns the client set until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			clear(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case c := <-h.register:
			n := h.track(c, true)
			h.connects.Add(1)
			if int64(n) > h.peak.Load() {
				h.peak.Store(int64(n))
			}
			h.logger.Debug("websocket client connected", "clients", n)

		case c := <-h.unregister:
			n := h.track(c, false)
			h.logger.Debug("websocket client disconnected", "clients", n)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// track adds or removes a client and returns the new client count.
func (h *Hub) track(c *Client, add bool) int {
	h.mu.Lock()
	if add {
		h.clients[c] = struct{}{}
	} else if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
	return n
}

// deliver writes event to every interested client. Clients whose send
// buffer is full are disconnected rather than allowed to stall the hub.
func (h *Hub) deliver(event *Event) {
	h.events.Add(1)
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", "type", event.Type, "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(event) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.track(c, false)
	}
	if len(slow) > 0 {
		h.slowKicks.Add(int64(len(slow)))
		h.logger.Warn("dropped slow websocket clients", "count", len(slow), "event", event.Type)
	}
}

// Broadcast queues an event. It never blocks; when the queue is full the
// event is dropped.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping event", "type", event.Type)
	}
}

// BroadcastWalletAssessed publishes a wallet assessment, plus a
// high_risk_detected event when the score reaches HighRiskThreshold.
func (h *Hub) BroadcastWalletAssessed(data *WalletData) {
	now := time.Now()
	h.Broadcast(&Event{Type: EventWalletAssessed, Timestamp: now, Data: data})
	if data.Score >= HighRiskThreshold {
		h.Broadcast(&Event{Type: EventHighRisk, Timestamp: now, Data: data})
	}
}

// BroadcastBatchCompleted publishes a batch summary.
func (h *Hub) BroadcastBatchCompleted(data *BatchData) {
	h.Broadcast(&Event{Type: EventBatchCompleted, Timestamp: time.Now(), Data: data})
}

// Stats reports connection and event counters.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()

	return map[string]any{
		"connectedClients": n,
		"totalEvents":      h.events.Load(),
		"totalClients":     h.connects.Load(),
		"peakClients":      h.peak.Load(),
		"droppedEvents":    h.dropped.Load(),
		"slowClients":      h.slowKicks.Load(),
	}
}

// HandleWebSocket upgrades the request and starts the client's pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	full := len(h.clients) >= h.maxClients
	h.mu.RUnlock()
	if full {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		sub:  Subscription{AllEvents: true},
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
