package mcpserver

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
)

// ServerConfig holds the HTTP and tool settings of the MCP server
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int

	IPAuthEnabled bool
	AllowedIPs    []string
	// TrustedProxies may set X-Forwarded-For and X-Real-IP
	TrustedProxies []string

	ToolName      string
	SearchTimeout time.Duration
	Version       string
}

// NewServerConfigFromTypes maps the root configuration onto ServerConfig
func NewServerConfigFromTypes(cfg *types.Config) (*ServerConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	serverConfig := &ServerConfig{
		Host:            cfg.MCPServerHost,
		Port:            cfg.MCPServerPort,
		ReadTimeout:     cfg.MCPServerReadTimeout,
		WriteTimeout:    cfg.MCPServerWriteTimeout,
		IdleTimeout:     cfg.MCPServerIdleTimeout,
		ShutdownTimeout: cfg.MCPServerShutdownTimeout,
		MaxHeaderBytes:  1 << 20,
		IPAuthEnabled:   cfg.MCPIPAuthEnabled,
		AllowedIPs:      append([]string(nil), cfg.MCPAllowedIPs...),
		TrustedProxies:  append([]string(nil), cfg.MCPTrustedProxies...),
		ToolName:        cfg.MCPToolName,
		SearchTimeout:   cfg.SearchTimeout,
	}
	if serverConfig.ToolName == "" {
		serverConfig.ToolName = DefaultToolName
	}
	if serverConfig.ShutdownTimeout <= 0 {
		serverConfig.ShutdownTimeout = 15 * time.Second
	}
	if serverConfig.Port < 1 || serverConfig.Port > 65535 {
		return nil, fmt.Errorf("invalid MCP server port: %d", serverConfig.Port)
	}
	if serverConfig.IPAuthEnabled && len(serverConfig.AllowedIPs) == 0 {
		return nil, fmt.Errorf("IP authentication enabled without allowed IPs")
	}
	return serverConfig, nil
}

// Address returns host:port
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
