// Package ws pushes price snapshots and alarm events to browser clients.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	EventPriceUpdate    = "price_update"
	EventAlarmTriggered = "alarm_triggered"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{SendBuffer: 16, WriteWait: 10 * time.Second, PongWait: 60 * time.Second}
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() { c.closeOnce.Do(func() { close(c.send) }) }

// Hub fans encoded frames out to every connected client. Each client has a
// bounded send buffer; a client that cannot keep up is disconnected.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	metrics  drepo.Metrics
	logger   *logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastFrame []byte
}

var _ drepo.Broadcaster = (*Hub)(nil)

func NewHub(opts Options, metrics drepo.Metrics, l *logger.Logger) *Hub {
	def := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	h := &Hub{
		opts:    opts,
		metrics: metrics,
		logger:  l.With("ws"),
		now:     time.Now,
		clients: make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// RegisterRoutes mounts the hub at /ws.
func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", echo.WrapHandler(h))
}

// ServeHTTP upgrades the request and registers the client. The client first
// receives the latest price frame, if any.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.opts.SendBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	if h.lastFrame != nil {
		c.send <- h.lastFrame
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordClients(n)
	h.logger.Debug("client connected", logger.String("client_id", c.id), logger.Int("clients", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.metrics.RecordClients(n)
		h.logger.Debug("client disconnected", logger.String("client_id", c.id), logger.Int("clients", n))
	}
}

// Broadcast sends the valid quotes of snapshot to every client.
func (h *Hub) Broadcast(snapshot []models.Quote) {
	frame, err := json.Marshal(Message{
		Event: EventPriceUpdate,
		Data: models.SnapshotEvent{
			Meta:   models.SnapshotMeta{Time: h.now()},
			Prices: models.FilterValid(snapshot),
		},
	})
	if err != nil {
		h.metrics.RecordError("ws_encode")
		h.logger.Error("encode price update failed", logger.Error(err))
		return
	}
	h.fanOut(frame, true)
}

// BroadcastAlarm sends an alarm_triggered event to every client.
func (h *Hub) BroadcastAlarm(ev models.AlarmFiredEvent) {
	frame, err := json.Marshal(Message{Event: EventAlarmTriggered, Data: ev})
	if err != nil {
		h.metrics.RecordError("ws_encode")
		h.logger.Error("encode alarm event failed", logger.Error(err))
		return
	}
	h.fanOut(frame, false)
}

func (h *Hub) fanOut(frame []byte, remember bool) {
	var slow []*client

	h.mu.Lock()
	if remember {
		h.lastFrame = frame
	}
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.metrics.RecordError("ws_slow_client")
		h.logger.Warn("dropping slow client", logger.String("client_id", c.id))
		h.unregister(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards client messages; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
