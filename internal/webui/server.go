package webui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ca-srg/halalfinder/internal/locate"
	"github.com/ca-srg/halalfinder/internal/types"
)

// ServerConfig holds the web UI server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	SearchTimeout   time.Duration
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "localhost",
		Port:            8081,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		SearchTimeout:   60 * time.Second,
	}
}

// NewServerConfigFromTypes extracts the web UI settings from the application config
func NewServerConfigFromTypes(cfg *types.Config) *ServerConfig {
	serverConfig := DefaultServerConfig()
	serverConfig.Host = cfg.WebUIHost
	serverConfig.Port = cfg.WebUIPort
	serverConfig.ReadTimeout = cfg.WebUIReadTimeout
	serverConfig.WriteTimeout = cfg.WebUIWriteTimeout
	serverConfig.ShutdownTimeout = cfg.WebUIShutdownTimeout
	serverConfig.SearchTimeout = cfg.SearchTimeout
	return serverConfig
}

// Searcher runs searches for the web UI
type Searcher interface {
	Run(ctx context.Context, loc types.Coordinate) ([]types.ResultEntry, error)
	RunFromAddress(ctx context.Context, text string) ([]types.ResultEntry, *types.GeocodeResult, error)
	Describe(ctx context.Context, loc types.Coordinate) string
}

// PhoneEnricher adds phone numbers to results on request
type PhoneEnricher interface {
	Enrich(ctx context.Context, entries []types.ResultEntry) []types.ResultEntry
}

// Dependencies are the collaborators the server calls into
type Dependencies struct {
	Searcher        Searcher
	Locator         locate.Locator
	Enricher        PhoneEnricher
	DefaultLocation types.Coordinate
}

// Server serves the search page, the JSON API and the run event feed
type Server struct {
	config       *ServerConfig
	deps         Dependencies
	httpServer   *http.Server
	templates    *TemplateManager
	state        *SearchState
	events       *RunEvents
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer creates a new web UI server
func NewServer(serverConfig *ServerConfig, deps Dependencies, logger *log.Logger) (*Server, error) {
	if serverConfig == nil {
		serverConfig = DefaultServerConfig()
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[webui] ", log.LstdFlags)
	}

	templates, err := NewTemplateManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}

	events := NewRunEvents(nil, logger)
	return &Server{
		config:    serverConfig,
		deps:      deps,
		templates: templates,
		state:     NewSearchState(events, logger),
		events:    events,
		logger:    logger,
	}, nil
}

// Run binds the listen address, serves until ctx is canceled and then
// drains in-flight requests. Bind failures are returned immediately.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.events.Run(ctx)

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Printf("Web UI listening on http://%s", listener.Addr())
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) shutdown() error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Println("Shutting down, waiting for in-flight searches")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	})
	return shutdownErr
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/search/device", s.handleDeviceSearch)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/history", s.handleAPIHistory)
	mux.HandleFunc("/api/errors", s.handleAPIErrors)

	mux.HandleFunc("/events", s.handleSearchEvents)

	return s.accessLog(mux)
}

// statusRecorder captures the response code for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// accessLog writes one line per request. The event stream is long lived
// and only logged when it opens.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/events" {
			s.logger.Printf("%s %s subscriber connected from %s", r.Method, r.URL.Path, r.RemoteAddr)
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// GetState returns the search state controller
func (s *Server) GetState() *SearchState {
	return s.state
}
