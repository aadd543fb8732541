// Package dashboard serves the sync indicator over WebSocket and a small HTTP API.
//
// The server implements sync.Indicator and sync.ResultObserver, so it can be
// handed to the engine directly (usually inside a sync.MultiIndicator). Each
// state change, pass result and refreshed stats snapshot is broadcast to every
// connected /ws client.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/formtype"
	"github.com/pacetech/docflow/internal/docflow/schema"
	docsync "github.com/pacetech/docflow/internal/docflow/sync"
	"github.com/pacetech/docflow/internal/logging"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeIndicator carries the current indicator state
	MessageTypeIndicator MessageType = "indicator"

	// MessageTypeStats carries per-status record counts
	MessageTypeStats MessageType = "stats"

	// MessageTypeSyncComplete carries the result of a finished pass
	MessageTypeSyncComplete MessageType = "sync_complete"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// IndicatorData is the payload of an indicator message.
type IndicatorData struct {
	State docsync.IndicatorState `json:"state"`
}

// Source is the read side of the store the dashboard reports on.
type Source interface {
	GetStats(ctx context.Context) (db.Stats, error)
	List(ctx context.Context, filter db.ListFilter) ([]*schema.Record, error)
}

var _ Source = (*db.DB)(nil)

// SyncRequester accepts explicit sync requests. *daemon.Daemon satisfies it.
type SyncRequester interface {
	RequestSync(reason string) bool
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr      string
	listener  net.Listener
	server    *http.Server
	source    Source
	requester SyncRequester
	formTypes *formtype.Registry

	// Current indicator state
	state   docsync.IndicatorState
	stateMu sync.RWMutex

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger zerolog.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Host to bind (default: 127.0.0.1)
	Host string

	// Source backs /api/stats, /api/forms and stats broadcasts
	Source Source

	// Requester receives POST /api/sync. Nil disables the endpoint.
	Requester SyncRequester

	// FormTypes supplies display titles for /api/forms
	FormTypes *formtype.Registry

	// Logger for server activity
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	l := logging.Component("dashboard")
	return &Config{
		Port:   8080,
		Host:   "127.0.0.1",
		Logger: &l,
	}
}

// NewServer creates a new dashboard server
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.FormTypes == nil {
		config.FormTypes = formtype.Builtin()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		source:    config.Source,
		requester: config.Requester,
		formTypes: config.FormTypes,
		state:     docsync.IndicatorOnline,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    *config.Logger,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/forms", s.handleForms)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("dashboard server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("stopping dashboard")
		s.cancel()

		s.clientsMu.Lock()
		for conn := range s.clients {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(s.clients, conn)
		}
		s.clientsMu.Unlock()

		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.server.Shutdown(ctx); err != nil {
				stopErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.wg.Wait()
		s.logger.Info().Msg("dashboard stopped")
	})
	return stopErr
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn().Str("type", string(msg.Type)).Msg("broadcast channel full, dropping message")
	}
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to marshal message")
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot stall registration.
			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Debug().Err(err).Msg("failed to send to client")
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug().Int("clients", clientCount).Msg("client connected")

	// New clients get the current state before any broadcast.
	for _, msg := range []Message{s.indicatorMessage(s.State()), s.statsMessage()} {
		if msg.Type == "" {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = s.write(conn, data)
	}

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Debug().Int("clients", clientCount).Msg("client disconnected")
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
