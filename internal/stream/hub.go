// Package stream fans driver frames out to WebSocket viewers and relays their
// commands back to the driver.
package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/logging"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultMaxPayload   = 1 << 16
	defaultSendBuffer   = 32
	writeWait           = 10 * time.Second
)

// ErrHubClosed is returned by Run when the hub has already been shut down.
var ErrHubClosed = errors.New("stream hub closed")

// Source publishes driver frames to subscribers.
type Source interface {
	Subscribe() (<-chan driver.Frame, func())
}

// Submitter accepts commands decoded from viewers.
type Submitter interface {
	SubmitCommand(ctx context.Context, cmd driver.Command) error
}

// Authenticator validates an upgrade request and returns the caller's subject.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// RateLimiter gates scene resets requested over the socket.
type RateLimiter interface {
	Allow() bool
}

// Options configures a Hub.
type Options struct {
	Logger         *logging.Logger
	AllowedOrigins []string
	PingInterval   time.Duration
	MaxPayload     int64
	// MaxClients bounds concurrent viewers. Zero disables the limit.
	MaxClients    int
	SendBuffer    int
	Authenticator Authenticator
	ResetLimiter  RateLimiter
}

// Hub owns the set of connected viewers.
type Hub struct {
	source    Source
	submitter Submitter
	log       *logging.Logger
	upgrader  websocket.Upgrader
	origins   map[string]struct{}
	ping      time.Duration
	maxLoad   int64
	maxConns  int
	buffer    int
	auth      Authenticator
	limiter   RateLimiter

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc

	dropped  atomic.Uint64
	accepted atomic.Uint64
}

// ServerMessage is sent to a viewer when one of its commands is rejected.
type ServerMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

// NewHub constructs a hub that relays frames from source and commands to submitter.
func NewHub(source Source, submitter Submitter, opts Options) (*Hub, error) {
	if source == nil {
		return nil, errors.New("frame source must be provided")
	}
	if submitter == nil {
		return nil, errors.New("command submitter must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	h := &Hub{
		source:    source,
		submitter: submitter,
		log:       logger.With(logging.String("component", "stream")),
		ping:      opts.PingInterval,
		maxLoad:   opts.MaxPayload,
		maxConns:  opts.MaxClients,
		buffer:    opts.SendBuffer,
		auth:      opts.Authenticator,
		limiter:   opts.ResetLimiter,
		clients:   make(map[string]*client),
	}
	if h.ping <= 0 {
		h.ping = defaultPingInterval
	}
	if h.maxLoad <= 0 {
		h.maxLoad = defaultMaxPayload
	}
	if h.buffer <= 0 {
		h.buffer = defaultSendBuffer
	}
	if len(opts.AllowedOrigins) > 0 {
		h.origins = make(map[string]struct{}, len(opts.AllowedOrigins))
		for _, origin := range opts.AllowedOrigins {
			h.origins[strings.ToLower(strings.TrimSpace(origin))] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h, nil
}

// Run subscribes to the frame source and fans encoded frames out until ctx is
// cancelled, then disconnects every viewer.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrHubClosed
	}
	frames, unsubscribe := h.source.Subscribe()
	defer unsubscribe()
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			payload, err := driver.EncodeFrame(frame)
			if err != nil {
				h.log.Error("frame encoding failed", logging.Uint64("seq", frame.Seq), logging.Error(err))
				continue
			}
			h.broadcast(payload)
		}
	}
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.cancel()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// Stats reports connected viewers and frames dropped for slow ones.
func (h *Hub) Stats() (clients int, dropped uint64) {
	h.mu.RLock()
	clients = len(h.clients)
	h.mu.RUnlock()
	return clients, h.dropped.Load()
}

// Accepted reports how many viewers have connected since start.
func (h *Hub) Accepted() uint64 {
	return h.accepted.Load()
}

// ServeHTTP upgrades the request and registers the viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.log.With(logging.String("remote_addr", r.RemoteAddr))
	subject := ""
	if h.auth != nil {
		var err error
		subject, err = h.auth.Authenticate(r)
		if err != nil {
			reqLogger.Warn("websocket authentication failed", logging.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if !h.hasCapacity() {
		reqLogger.Warn("websocket rejected: client limit reached", logging.Int("max_clients", h.maxConns))
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		reqLogger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	c := &client{
		id:      uuid.NewString(),
		subject: subject,
		conn:    conn,
		send:    make(chan []byte, h.buffer),
		hub:     h,
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	c.log = reqLogger.With(logging.String("client_id", c.id), logging.String("subject", subject))
	c.log.Info("websocket client connected")
	go c.writePump()
	go c.readPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.origins == nil {
		return true
	}
	origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

func (h *Hub) hasCapacity() bool {
	if h.maxConns <= 0 {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) < h.maxConns
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || (h.maxConns > 0 && len(h.clients) >= h.maxConns) {
		return false
	}
	h.clients[c.id] = c
	h.accepted.Add(1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.id]; ok && current == c {
		delete(h.clients, c.id)
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
			h.dropped.Add(1)
		}
	}
}

// deliver queues payload for one viewer without blocking.
func (h *Hub) deliver(c *client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if current, ok := h.clients[c.id]; !ok || current != c {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}
