// Package server provides the HTTP and websocket front end of the tracking
// service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultPingTimeout bounds each liveness ping write.
const DefaultPingTimeout = time.Second

// CameraFactory opens a frame source for a new session.
type CameraFactory func() (session.FrameSource, error)

// DetectorFactory creates a detector for a new session.
type DetectorFactory func() (detector.Detector, error)

var (
	errNoCamera   = errors.New("no camera configured")
	errNoDetector = errors.New("no detector configured")
)

// Config holds the server configuration.
type Config struct {
	StaticDir   string
	PingTimeout time.Duration

	Store    *store.Store
	Registry *session.Registry

	// SetSmoothingDefault handles PUT /api/settings. Defaults to saving in
	// Store and updating Registry.
	SetSmoothingDefault api.SmoothingSetter

	OpenCamera   CameraFactory
	OpenDetector DetectorFactory
	Renderer     session.Renderer
	Loop         session.LoopConfig

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *zap.SugaredLogger

	// ctx is cancelled by Close to stop every running session.
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders session registration against Close so no session starts
	// after Close has begun waiting.
	mu       sync.Mutex
	sessions sync.WaitGroup
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Registry == nil {
		config.Registry = session.NewRegistry(filter.DefaultConfig(), config.Clock)
	}
	if config.SetSmoothingDefault == nil {
		config.SetSmoothingDefault = api.PersistSmoothing(config.Registry, config.Store)
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = DefaultPingTimeout
	}
	if config.OpenCamera == nil {
		config.OpenCamera = func() (session.FrameSource, error) { return nil, errNoCamera }
	}
	if config.OpenDetector == nil {
		config.OpenDetector = func() (detector.Detector, error) { return nil, errNoDetector }
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  config.Clock.Now(),
		logger: config.Logger.Named("server"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	sessions := api.NewSessionHandler(s.config.Registry, s.config.Store)
	s.mux.Handle("/api/sessions", sessions)
	s.mux.Handle("/api/sessions/", sessions)
	s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Registry, s.config.SetSmoothingDefault))

	tracking := &TrackingHandler{srv: s}
	s.mux.Handle("/ws", tracking)

	var static http.Handler = http.NotFoundHandler()
	if s.config.StaticDir != "" {
		static = http.FileServer(http.Dir(s.config.StaticDir))
	}

	// Game clients connect to the bare host, so "/" also accepts upgrades.
	s.mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			tracking.ServeHTTP(w, r)
			return
		}
		static.ServeHTTP(w, r)
	}))
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Registry returns the live session registry.
func (s *Server) Registry() *session.Registry {
	return s.config.Registry
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := s.config.Clock.Since(s.start)

	response := map[string]interface{}{
		"status":   "ok",
		"uptime":   uptime.String(),
		"sessions": s.config.Registry.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Close stops all running sessions and waits until each has released its
// camera and detector and written its history record. New tracking
// connections are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.sessions.Wait()
}

// beginSession registers a tracking handler with Close. It returns false
// once the server is closing.
func (s *Server) beginSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.sessions.Add(1)
	return true
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and stops all sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
