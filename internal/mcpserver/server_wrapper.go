package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerWrapper wraps the MCP SDK server with HTTP transport, IP
// authentication and the restaurant search tool.
type ServerWrapper struct {
	sdkServer  *mcp.Server
	httpServer *http.Server
	config     *ServerConfig

	ipAuthMiddleware *IPAuthMiddleware
	tools            []string

	logger    *log.Logger
	mutex     sync.RWMutex
	isRunning bool
	startedAt time.Time
}

// NewServerWrapper creates the SDK server. Tools are added with RegisterSearchTool.
func NewServerWrapper(config *ServerConfig, logger *log.Logger) (*ServerWrapper, error) {
	if config == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[MCPServer] ", log.LstdFlags)
	}

	version := config.Version
	if version == "" {
		version = "dev"
	}

	sw := &ServerWrapper{
		sdkServer: mcp.NewServer(&mcp.Implementation{Name: "halalfinder-mcp-server", Version: version}, nil),
		config:    config,
		logger:    logger,
	}

	if config.IPAuthEnabled {
		middleware, err := NewIPAuthMiddleware(config.AllowedIPs, config.TrustedProxies, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create IP auth middleware: %w", err)
		}
		sw.ipAuthMiddleware = middleware
	}

	return sw, nil
}

// RegisterSearchTool registers the restaurant search tool handler
func (sw *ServerWrapper) RegisterSearchTool(handler *RestaurantSearchHandler) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	tool := handler.GetSDKToolDefinition()
	sw.sdkServer.AddTool(tool, handler.HandleSDKToolCall)
	sw.tools = append(sw.tools, tool.Name)
	sw.logger.Printf("Tool %s registered successfully", tool.Name)
}

// Handler builds the HTTP handler chain: logging, IP auth, then the MCP routes
func (sw *ServerWrapper) Handler() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return sw.sdkServer }
	mcpHandler := mcp.NewStreamableHTTPHandler(getServer, nil)

	mux := http.NewServeMux()
	mux.Handle("/", mcpHandler)
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc("/health", sw.handleHealthCheck)

	var handler http.Handler = mux
	if sw.ipAuthMiddleware != nil {
		handler = sw.ipAuthMiddleware.Middleware(handler)
	}
	return sw.loggingMiddleware(handler)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (sw *ServerWrapper) Run(ctx context.Context) error {
	sw.mutex.Lock()
	if sw.isRunning {
		sw.mutex.Unlock()
		return fmt.Errorf("server is already running")
	}
	sw.httpServer = &http.Server{
		Addr:           sw.config.Address(),
		Handler:        sw.Handler(),
		ReadTimeout:    sw.config.ReadTimeout,
		WriteTimeout:   sw.config.WriteTimeout,
		IdleTimeout:    sw.config.IdleTimeout,
		MaxHeaderBytes: sw.config.MaxHeaderBytes,
	}
	sw.isRunning = true
	sw.startedAt = time.Now()
	sw.mutex.Unlock()

	defer func() {
		sw.mutex.Lock()
		sw.isRunning = false
		sw.mutex.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		sw.logger.Printf("Starting MCP server on %s (tools: %s)", sw.config.Address(), strings.Join(sw.tools, ", "))
		if err := sw.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		sw.logger.Println("Stopping MCP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sw.config.ShutdownTimeout)
		defer cancel()
		if err := sw.httpServer.Shutdown(shutdownCtx); err != nil {
			sw.logger.Printf("Graceful shutdown failed: %v, forcing close", err)
			_ = sw.httpServer.Close()
			return err
		}
		sw.logger.Println("MCP server stopped")
		return nil
	}
}

// IsRunning returns whether the server is currently serving
func (sw *ServerWrapper) IsRunning() bool {
	sw.mutex.RLock()
	defer sw.mutex.RUnlock()
	return sw.isRunning
}

// GetSDKServer returns the underlying SDK server instance
func (sw *ServerWrapper) GetSDKServer() *mcp.Server {
	return sw.sdkServer
}

func (sw *ServerWrapper) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	sw.mutex.RLock()
	status := map[string]interface{}{
		"status":  "healthy",
		"running": sw.isRunning,
		"address": sw.config.Address(),
		"tools":   append([]string(nil), sw.tools...),
	}
	if sw.isRunning {
		status["uptime"] = time.Since(sw.startedAt).Round(time.Second).String()
	}
	sw.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		sw.logger.Printf("Failed to write response: %v", err)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += int64(n)
	return n, err
}

// Flush keeps streamable HTTP responses flowing through the logging writer
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *ServerWrapper) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)

		sw.logger.Printf(
			"Request: %s %s status=%d bytes=%d duration=%s client_ip=%s user_agent=%q",
			r.Method,
			r.URL.Path,
			lrw.status,
			lrw.size,
			time.Since(start),
			sw.clientIP(r),
			r.Header.Get("User-Agent"),
		)
	})
}

func (sw *ServerWrapper) clientIP(r *http.Request) string {
	if sw.ipAuthMiddleware != nil {
		return extractClientIP(r, sw.ipAuthMiddleware.trustedNets)
	}
	return extractClientIP(r, nil)
}
