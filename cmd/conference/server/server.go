// Package server provides an importable conference server: the web client,
// websocket signaling for rooms, and a WebRTC forwarding unit.
// E2E tests start and stop it programmatically without running main().
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (e.g., ":8080" or ":0" for random port)
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	ICEServers   []string      // STUN/TURN URLs handed to both ends
	DisableMedia bool          // Signaling only, no PeerConnections
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to a random available port.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the conference HTTP server.
type Server struct {
	cfg        Config
	hub        *Hub
	metrics    *Metrics
	registry   *prometheus.Registry
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("server address is required")
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	s := &Server{
		cfg:      cfg,
		hub:      NewHub(metrics),
		metrics:  metrics,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Random room for bare visits
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		room := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
		http.Redirect(w, r, "/"+room, http.StatusFound)
	})

	r.Get("/ws/{room:[A-Za-z0-9_-]+}", s.handleWebSocket)

	// Serve the conference page for any room
	r.Get("/{room:[A-Za-z0-9_-]+}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(HTMLPage))
	})
	return r
}

// Hub exposes the room registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry exposes the Prometheus registry behind /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start begins listening and serving HTTP requests.
// Returns the actual address the server is listening on (useful when port is 0).
// This method is non-blocking - the server runs in a goroutine.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	// Create listener to get actual port
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	// Start serving in background
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[server] serve: %v", err)
		}
	}()

	return s.addr, nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns an http URL for path on the loopback host. Chrome only grants
// camera access to secure contexts, and localhost counts as one.
func (s *Server) URL(path string) string {
	addr := s.Addr()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return "http://localhost:" + port + "/" + strings.TrimLeft(path, "/")
}
