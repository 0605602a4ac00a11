package signal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one relay connection. Room membership lives in the Registry.
type Client struct {
	id     string
	conn   *websocket.Conn // nil for in-process pipes
	codec  Codec
	send   chan Message
	server *Server
	logger *slog.Logger
}

// ID returns the connection id assigned at handshake
func (c *Client) ID() string {
	return c.id
}

// Server relays signaling messages between room members
type Server struct {
	registry *Registry
	cfg      ServerConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewServer creates a relay around registry. A nil logger uses slog.Default.
func NewServer(registry *Registry, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	s := &Server{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Registry returns the membership registry the server routes with
func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true // Allow all origins for development
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// newClient registers a connection under a fresh id
func (s *Server) newClient(conn *websocket.Conn, codec Codec) *Client {
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		codec:  codec,
		send:   make(chan Message, s.cfg.SendBuffer),
		server: s,
	}
	c.logger = s.logger.With("conn", c.id)

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	return c
}

// removeClient forgets a connection and drops its room membership
func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	if ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if room := s.registry.OnDisconnect(c.id); room != "" {
		c.logger.Info("connection left room on disconnect", "room", room)
	}
}

// deliver pushes msg to every id without blocking. A full queue drops the
// message for that recipient.
func (s *Server) deliver(ids []string, msg Message) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, id := range ids {
		c, ok := s.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- msg:
			delivered++
		default:
			c.logger.Warn("send buffer full, dropping message", "event", msg.Event)
		}
	}
	return delivered
}

// HandleWebSocket upgrades a request into a relay connection.
// The codec is picked with ?codec=json|msgpack.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	codec, err := CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := s.newClient(conn, codec)
	client.logger.Debug("connection opened", "codec", codec.Name(), "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// RoomsResponse is the body of GET /rooms
type RoomsResponse struct {
	Rooms       map[string]int `json:"rooms"`
	Connections int            `json:"connections"`
}

// HandleRooms serves a snapshot of room sizes
func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	conns := len(s.clients)
	s.mu.RUnlock()

	resp := RoomsResponse{Rooms: s.registry.Snapshot(), Connections: conns}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write rooms snapshot", "err", err)
	}
}

// Handler returns the relay's HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/rooms", s.HandleRooms)
	return mux
}

// ListenAndServe runs the relay until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("signal relay starting", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
