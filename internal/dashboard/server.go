// Package dashboard serves the sync status over HTTP.
//
// It exposes a human dashboard, a JSON status snapshot, manual action
// triggers, and a WebSocket that pushes status updates. Handlers only
// read published status snapshots; the long-running work behind the
// triggers happens in supervised goroutines so request handling never
// blocks on network or file I/O.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Mobahiro/epetcare-syncd/internal/monitor"
	"github.com/Mobahiro/epetcare-syncd/internal/status"
)

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8000).
	Port int

	// PushInterval is how often status snapshots are pushed to WebSocket
	// clients (default: 5s, matching the dashboard's polling cadence).
	PushInterval time.Duration

	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:         8000,
		PushInterval: 5 * time.Second,
		Logger:       log.Default(),
	}
}

// Server is the status HTTP server over the shared tracker.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	tracker *status.Tracker
	engine  *monitor.Engine
	super   *monitor.Supervisor

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	pushInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a status server. super may be nil when no background
// monitor is running (run-once mode); /restart-monitor then reports an
// error instead of redirecting.
func NewServer(cfg *Config, engine *monitor.Engine, super *monitor.Supervisor) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:         fmt.Sprintf(":%d", cfg.Port),
		tracker:      engine.Tracker(),
		engine:       engine,
		super:        super,
		clients:      make(map[*websocket.Conn]bool),
		pushInterval: cfg.PushInterval,
		ctx:          ctx,
		cancel:       cancel,
		logger:       cfg.Logger,
	}
}

// Start begins serving. Non-blocking; use Stop for graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.wg.Add(1)
	go s.pushLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("status server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()

	return nil
}

// Handler returns the route table (exported for tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/check", s.handleCheck)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/fix", s.handleFix)
	mux.HandleFunc("/restart-monitor", s.handleRestartMonitor)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Stop gracefully shuts the server down, closing WebSocket clients and
// waiting for in-flight trigger goroutines.
func (s *Server) Stop() error {
	s.logger.Printf("stopping status server")
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Printf("status server stopped")
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Printf("failed to encode status: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clients := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": clients,
	})
}

// handleCheck refreshes the local/remote snapshots synchronously, then
// redirects back to the dashboard.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	s.engine.RefreshSnapshots(ctx)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleSync triggers one out-of-band sync attempt. Overlapping triggers
// collapse inside the engine.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.spawn("manual sync", func(ctx context.Context) {
		res := s.engine.SyncOnce(ctx)
		s.logger.Printf("manual sync finished: success=%v", res.Success)
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleFix triggers one out-of-band remediation pass.
func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	s.spawn("manual fix", func(ctx context.Context) {
		applied := s.engine.Fix(ctx)
		s.logger.Printf("manual fix finished: applied=%v", applied)
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleRestartMonitor(w http.ResponseWriter, r *http.Request) {
	if s.super == nil {
		http.Error(w, "no monitor configured", http.StatusConflict)
		return
	}
	if err := s.super.Restart(); err != nil {
		s.logger.Printf("monitor restart failed: %v", err)
		http.Error(w, "monitor restart failed", http.StatusInternalServerError)
		return
	}
	s.logger.Printf("monitor restarted")
	http.Redirect(w, r, "/", http.StatusFound)
}

// spawn runs fn as a supervised one-shot task: tracked by the server's
// WaitGroup, cancelled with the server, completion logged.
func (s *Server) spawn(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("%s triggered", name)
		fn(s.ctx)
	}()
}

// handleWebSocket upgrades the connection and registers the client for
// status pushes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("websocket client connected (total: %d)", count)

	// Immediate first snapshot so new clients don't wait a full push
	// interval.
	s.send(conn, s.tracker.Snapshot())

	go s.readLoop(conn)
}

// pushLoop periodically pushes the current snapshot to all clients.
func (s *Server) pushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			snap := s.tracker.Snapshot()

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				s.send(conn, snap)
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, snap status.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Printf("failed to marshal snapshot: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, data)
	cancel()
	if err != nil {
		s.removeClient(conn)
	}
}

// readLoop keeps the connection alive and detects disconnects; client
// messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("websocket client disconnected (total: %d)", count)
}
