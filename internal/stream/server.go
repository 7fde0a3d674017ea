// Package stream serves solved depth maps to websocket clients.
//
// Each client gets a bounded send queue; when it is full the newest frame
// is dropped for that client only, so a slow viewer never stalls the
// pipeline or other viewers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/born-ml/livedepth/internal/pipeline"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	// DefaultSendBuffer is the per-client queue length.
	DefaultSendBuffer = 4
)

// Options configures a Server.
type Options struct {
	// SendBuffer is the per-client queue length.
	SendBuffer int

	// Status contributes extra fields to the /status document.
	Status func() map[string]any

	// Hello contributes extra fields to the greeting sent to new clients.
	Hello func() map[string]any

	Logger *slog.Logger
}

// Stats counts frame deliveries across all clients.
type Stats struct {
	Clients   int    `json:"clients"`
	Frames    uint64 `json:"frames"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Connected uint64 `json:"connected_total"`
}

type client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Server fans encoded depth frames out to websocket clients.
type Server struct {
	upgrader websocket.Upgrader
	opts     Options
	log      *slog.Logger

	mu      sync.Mutex
	clients map[string]*client

	frames    atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
	connected atomic.Uint64
}

// NewServer creates a server with no clients.
func NewServer(opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts:    opts,
		log:     log,
		clients: make(map[string]*client),
	}
}

// Handler returns the HTTP routes: /ws, /healthz and /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	s.log.Info("stream: listening", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Pump encodes every depth event received on events and broadcasts it,
// until ctx is done or events is closed.
func (s *Server) Pump(ctx context.Context, events <-chan pipeline.DepthEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := EncodeFrame(FrameFromEvent(ev))
			if err != nil {
				s.log.Warn("stream: encode frame", "seq", ev.Seq, "error", err)
				continue
			}
			s.Broadcast(payload)
		}
	}
}

// Broadcast queues payload for every client without blocking.
func (s *Server) Broadcast(payload []byte) {
	s.frames.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- payload:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the delivery counters.
func (s *Server) Stats() Stats {
	return Stats{
		Clients:   s.clientCount(),
		Frames:    s.frames.Load(),
		Sent:      s.sent.Load(),
		Dropped:   s.dropped.Load(),
		Connected: s.connected.Load(),
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("stream: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &client{
		id:     uuid.NewString(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, s.opts.SendBuffer),
		done:   make(chan struct{}),
	}

	hello := map[string]any{"type": "hello", "id": c.id}
	if s.opts.Hello != nil {
		for k, v := range s.opts.Hello() {
			hello[k] = v
		}
	}

	// A client that has read the greeting receives every later frame.
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		s.removeClient(c)
		return
	}
	s.connected.Add(1)
	s.log.Info("stream: client connected", "id", c.id, "remote", c.remote)

	go s.writeLoop(c)
	go s.readLoop(c)
}

// readLoop discards client messages and detects disconnects.
func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				s.removeClient(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.removeClient(c)
				return
			}
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.stop()
	_ = c.conn.Close()
	if ok {
		s.log.Info("stream: client disconnected", "id", c.id, "remote", c.remote)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.removeClient(c)
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{}
	if s.opts.Status != nil {
		for k, v := range s.opts.Status() {
			payload[k] = v
		}
	}
	payload["stream"] = s.Stats()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
