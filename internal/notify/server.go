// Package notify pushes document changes to connected dashboard UIs over
// WebSocket and routes their editing-surface events back to the sync
// controller.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JamesPrial/officedesk/internal/storage"
	"github.com/JamesPrial/officedesk/internal/syncctl"
)

// MessageType names a hub message.
type MessageType string

const (
	// MessageDocumentChanged carries a reloaded document whose version moved.
	MessageDocumentChanged MessageType = "document_changed"

	// MessageDisconnected reports that file access was lost.
	MessageDisconnected MessageType = "disconnected"

	// MessageSaved reports a completed save.
	MessageSaved MessageType = "saved"

	// MessageSurfaceOpen is sent by a client when an editing surface opens.
	MessageSurfaceOpen MessageType = "surface_open"

	// MessageSurfaceClose is sent by a client when an editing surface closes.
	MessageSurfaceClose MessageType = "surface_close"

	// MessageReconnect is sent by a client to restore lost file access.
	MessageReconnect MessageType = "reconnect"

	// MessageConnected answers a successful reconnect with the reloaded
	// document. Its payload is DocumentChangedData.
	MessageConnected MessageType = "connected"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for every hub message in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DocumentChangedData is the payload of MessageDocumentChanged.
type DocumentChangedData struct {
	Version  uint64            `json:"version"`
	Document *storage.Document `json:"document"`
}

// DisconnectedData is the payload of MessageDisconnected.
type DisconnectedData struct {
	Error string `json:"error"`
}

// SavedData is the payload of MessageSaved.
type SavedData struct {
	Version uint64 `json:"version"`
}

// SurfaceData is the payload of MessageSurfaceOpen and MessageSurfaceClose.
type SurfaceData struct {
	Surface string `json:"surface"`
}

// SurfaceRouter receives surface events. *syncctl.Controller implements it.
type SurfaceRouter interface {
	Open(s syncctl.Surface)
	Close(s syncctl.Surface)
}

// ReconnectFunc restores the connection and returns the reloaded document.
type ReconnectFunc func() (*storage.Document, uint64, error)

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:7420". Port 0 picks a free port.
	Addr string

	// Surfaces receives surface_open and surface_close. Nil ignores them.
	Surfaces SurfaceRouter

	// Status feeds /health. Nil reports only the client count.
	Status func() syncctl.Status

	// Registry backs /metrics and receives the hub's own collectors. Nil
	// disables /metrics.
	Registry *prometheus.Registry

	Logger *log.Logger
}

// Server manages WebSocket clients and broadcasts hub messages.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	surfaces SurfaceRouter
	status   func() syncctl.Status
	registry *prometheus.Registry
	gauge    prometheus.Gauge
	logger   *log.Logger

	reconnectMu sync.Mutex
	reconnect   ReconnectFunc

	// Surfaces each client currently holds open, released on disconnect.
	clients   map[*websocket.Conn]map[syncctl.Surface]int
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a stopped hub.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:      cfg.Addr,
		surfaces:  cfg.Surfaces,
		status:    cfg.Status,
		registry:  cfg.Registry,
		logger:    logger,
		clients:   make(map[*websocket.Conn]map[syncctl.Surface]int),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	if s.registry != nil {
		s.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "officedesk",
			Subsystem: "notify",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		})
		if err := s.registry.Register(s.gauge); err != nil {
			logger.Printf("Failed to register client gauge: %v", err)
			s.gauge = nil
		}
	}
	return s
}

// Handler returns the hub's routes: /ws, /health and, with a registry,
// /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens on the configured address and begins broadcasting.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Notify hub listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clientsMu.Unlock()
	for _, conn := range conns {
		s.removeClient(conn, websocket.StatusGoingAway, "server shutting down")
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}
	s.wg.Wait()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast queues msg for every client. A full queue drops the message.
func (s *Server) Broadcast(msg Message) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.broadcast <- msg:
	default:
		s.logger.Printf("Broadcast queue full, dropping %s", msg.Type)
	}
}

// OnReconnect sets the handler for client reconnect requests. Without one,
// reconnect messages are ignored.
func (s *Server) OnReconnect(fn ReconnectFunc) {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	s.reconnect = fn
}

// DocumentChanged broadcasts a reloaded document. Its signature matches
// syncctl.Controller.OnChange.
func (s *Server) DocumentChanged(doc *storage.Document, version uint64) {
	s.send(MessageDocumentChanged, DocumentChangedData{Version: version, Document: doc})
}

// Disconnected broadcasts lost file access. Its signature matches
// syncctl.Controller.OnDisconnect.
func (s *Server) Disconnected(err error) {
	data := DisconnectedData{}
	if err != nil {
		data.Error = err.Error()
	}
	s.send(MessageDisconnected, data)
}

// Saved broadcasts a completed save. Its signature matches
// docstore.Gateway.OnSave.
func (s *Server) Saved(version uint64) {
	s.send(MessageSaved, SavedData{Version: version})
}

func (s *Server) send(t MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("Failed to marshal %s payload: %v", t, err)
		return
	}
	s.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: data})
}

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
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn, websocket.StatusInternalError, "write failed")
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = make(map[syncctl.Surface]int)
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.setGauge(count)

	s.logger.Printf("Client connected (total: %d)", count)
	s.readLoop(conn)
}

// readLoop handles inbound surface events until the client goes away.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn, websocket.StatusNormalClosure, "")

	for {
		typ, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Printf("Ignoring malformed client message: %v", err)
			continue
		}
		s.handleClientMessage(conn, msg)
	}
}

func (s *Server) handleClientMessage(conn *websocket.Conn, msg Message) {
	if msg.Type == MessageReconnect {
		s.handleReconnect()
		return
	}
	if msg.Type != MessageSurfaceOpen && msg.Type != MessageSurfaceClose {
		s.logger.Printf("Ignoring client message of type %q", msg.Type)
		return
	}
	var payload SurfaceData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		s.logger.Printf("Ignoring %s with bad payload: %v", msg.Type, err)
		return
	}
	surface, err := syncctl.ParseSurface(payload.Surface)
	if err != nil {
		s.logger.Printf("Ignoring %s: %v", msg.Type, err)
		return
	}

	s.clientsMu.Lock()
	held, ok := s.clients[conn]
	if !ok {
		s.clientsMu.Unlock()
		return
	}
	route := true
	if msg.Type == MessageSurfaceOpen {
		held[surface]++
	} else if held[surface] > 0 {
		held[surface]--
		if held[surface] == 0 {
			delete(held, surface)
		}
	} else {
		route = false
	}
	s.clientsMu.Unlock()

	if !route || s.surfaces == nil {
		return
	}
	if msg.Type == MessageSurfaceOpen {
		s.surfaces.Open(surface)
	} else {
		s.surfaces.Close(surface)
	}
}

// handleReconnect runs one reconnect attempt. Concurrent requests are
// serialized. Every client learns the outcome: connected with the reloaded
// document, or disconnected again with the reason.
func (s *Server) handleReconnect() {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	if s.reconnect == nil {
		s.logger.Printf("Ignoring reconnect request: no handler")
		return
	}
	doc, version, err := s.reconnect()
	if err != nil {
		s.logger.Printf("Reconnect failed: %v", err)
		s.Disconnected(err)
		return
	}
	s.logger.Printf("Reconnected at version %d", version)
	s.send(MessageConnected, DocumentChangedData{Version: version, Document: doc})
}

// removeClient drops conn and closes any surfaces it left open, so a
// vanished UI cannot keep polling suspended.
func (s *Server) removeClient(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	s.clientsMu.Lock()
	held, exists := s.clients[conn]
	if !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.setGauge(count)

	_ = conn.Close(code, reason)
	if s.surfaces != nil {
		for surface, n := range held {
			for i := 0; i < n; i++ {
				s.surfaces.Close(surface)
			}
		}
	}
	s.logger.Printf("Client disconnected (total: %d)", count)
}

func (s *Server) setGauge(count int) {
	if s.gauge != nil {
		s.gauge.Set(float64(count))
	}
}

type healthResponse struct {
	Status       string   `json:"status"`
	Clients      int      `json:"clients"`
	Sync         string   `json:"sync,omitempty"`
	Version      uint64   `json:"version,omitempty"`
	OpenSurfaces []string `json:"open_surfaces,omitempty"`
	LastError    string   `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Clients: s.ClientCount()}
	if s.status != nil {
		st := s.status()
		resp.Sync = st.State.String()
		resp.Version = st.Version
		for _, surface := range st.OpenSurfaces {
			resp.OpenSurfaces = append(resp.OpenSurfaces, surface.String())
		}
		if st.LastError != nil {
			resp.LastError = st.LastError.Error()
		}
		if st.State == syncctl.Disconnected {
			resp.Status = "disconnected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
