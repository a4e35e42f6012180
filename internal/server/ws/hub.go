// Package ws streams committed slot transitions to WebSocket clients. The
// hub subscribes to the market event channel on the signal bus and fans each
// event out to every connected client whose day filter matches.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adcal/slotmarket/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay under pongWait
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks happen in the CORS middleware in front of the hub.
	CheckOrigin: func(*http.Request) bool { return true },
}

// filterMsg is the one inbound message type: clients narrow the event stream
// to a set of days, or clear the filter to receive everything again.
type filterMsg struct {
	Action string `json:"action"` // "filter" or "clear"
	Days   []int  `json:"days,omitempty"`
}

// event carries a decoded day alongside the raw payload so the hub can match
// client filters without re-parsing per client.
type event struct {
	day  int
	data []byte
}

// client is one WebSocket connection and its day filter. A nil filter means
// the client wants every event.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	filter map[int]bool
}

// Config carries the metadata reported in the status frame sent on connect.
type Config struct {
	Mode      string
	Days      int
	StartedAt time.Time
}

// Hub fans market events out to connected clients.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	events     chan event
	register   chan *client
	unregister chan *client
	// done is closed when Run returns; senders on the channels above
	// select on it so client goroutines cannot block after shutdown.
	done chan struct{}

	mode      string
	days      int
	startedAt time.Time
}

// NewHub creates a hub bridging the signal bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]bool),
		events:     make(chan event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		mode:       mode,
		days:       cfg.Days,
		startedAt:  startedAt,
	}
}

// Run consumes the event channel and manages client membership until ctx is
// cancelled. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	go h.consumeBus(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case ev := <-h.events:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wantsDay(ev.day) {
					continue
				}
				select {
				case c.send <- ev.data:
				default:
					// Full buffer: the client is too slow, drop the event.
					h.logger.Warn("dropping event for slow client", slog.Int("day", ev.day))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// consumeBus subscribes to the market event channel and feeds the hub,
// extracting the day so broadcast can match client filters.
func (h *Hub) consumeBus(ctx context.Context) {
	msgs, err := h.bus.Subscribe(ctx, domain.EventChannel)
	if err != nil {
		h.logger.Error("event channel subscribe failed",
			slog.String("channel", domain.EventChannel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("consuming market events", slog.String("channel", domain.EventChannel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("event channel closed")
				return
			}
			var head struct {
				Day int `json:"day"`
			}
			if err := json.Unmarshal(data, &head); err != nil {
				continue
			}
			select {
			case h.events <- event{day: head.Day, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.queueStatus()

	go c.writePump()
	go c.readPump()
}

// wantsDay reports whether the client's filter admits events for day.
func (c *client) wantsDay(day int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter == nil || c.filter[day]
}

// readPump drains inbound frames, applying day-filter requests and keeping
// the read deadline fresh off pongs.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg filterMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		c.applyFilter(msg)
	}
}

// applyFilter installs or clears the client's day filter.
func (c *client) applyFilter(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "filter":
		filter := make(map[int]bool, len(msg.Days))
		for _, d := range msg.Days {
			filter[d] = true
		}
		c.filter = filter
	case "clear":
		c.filter = nil
	}
}

// queueStatus enqueues the status frame so a client sees a healthy
// connection before the first market event arrives.
func (c *client) queueStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	frame, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"days":           c.hub.days,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- frame:
	default:
	}
}

// writePump writes queued frames and keepalive pings until the connection
// dies or the hub closes the send channel.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
