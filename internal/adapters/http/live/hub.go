// Package live pushes ranking snapshots to websocket clients. The hub
// subscribes to the broadcast transport once and fans every payload out to
// its connected clients.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/besttime/internal/domain/types"
	"github.com/okian/besttime/pkg/logger"
	"github.com/okian/besttime/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultChannel      = "ranking_update"
	defaultWindow       = 10
	defaultSendBuffer   = 16
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 512
)

// Subscriber streams raw payloads from a transport channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SnapshotSource builds the current top rows for a newly connected client.
type SnapshotSource interface {
	Snapshot(ctx context.Context, k int) ([]types.RankingRow, error)
}

// Hub owns the set of connected clients.
type Hub struct {
	subscriber Subscriber
	source     SnapshotSource

	channel      string
	window       int
	sendBuffer   int
	pingInterval time.Duration
	origins      map[string]struct{}
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logger.Logger
}

// client is one websocket connection. Writes go through send and a single
// writer goroutine; gorilla connections allow one concurrent writer.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewHub creates a hub that listens on sub.
func NewHub(sub Subscriber, opts ...Option) *Hub {
	h := &Hub{
		subscriber:   sub,
		channel:      defaultChannel,
		window:       defaultWindow,
		sendBuffer:   defaultSendBuffer,
		pingInterval: defaultPingInterval,
		clients:      make(map[string]*client),
		logger:       logger.Get().Named("live"),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Start subscribes to the channel and begins fanning out. The subscription
// is established before Start returns.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	payloads, err := h.subscriber.Subscribe(ctx, h.channel)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	h.cancel = cancel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx, payloads)
	}()

	h.logger.Info(ctx, "live hub started", logger.String("channel", h.channel))
	return nil
}

// Stop ends the subscription and disconnects every client.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.closeAll()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) run(ctx context.Context, payloads <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			h.broadcast(ctx, payload)
		}
	}
}

// broadcast hands payload to every client without blocking. A client whose
// buffer is full is disconnected; it can reconnect and receive a fresh snapshot.
func (h *Hub) broadcast(ctx context.Context, payload []byte) {
	h.mu.Lock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn(ctx, "disconnecting slow live client", logger.String("client_id", c.id))
		metrics.RecordErrorByComponent("live", "slow_client")
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	// Register before reading the snapshot: a broadcast published while it
	// is built still reaches this client, so nothing falls in between.
	h.add(c)
	if h.source != nil {
		if payload, err := h.initialSnapshot(r.Context()); err != nil {
			h.logger.Warn(r.Context(), "initial snapshot failed", logger.Error(err))
		} else {
			select {
			case c.send <- payload:
			default:
				// Fresher broadcasts already fill the buffer.
			}
		}
	}

	ctx := context.WithoutCancel(r.Context())
	go h.writeLoop(ctx, c)
	h.readLoop(ctx, c)
}

func (h *Hub) initialSnapshot(ctx context.Context) ([]byte, error) {
	rows, err := h.source.Snapshot(ctx, h.window)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rows)
}

// readLoop discards client messages and detects disconnects through the
// read deadline that pongs extend.
func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.remove(c)

	pongWait := h.pingInterval * 2
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "live client read error",
					logger.String("client_id", c.id),
					logger.Error(err),
				)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug(ctx, "live client write failed",
					logger.String("client_id", c.id),
					logger.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateLiveClients(n)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		metrics.UpdateLiveClients(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
	metrics.UpdateLiveClients(0)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}
