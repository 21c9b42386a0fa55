package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appconfig "github.com/ca-srg/halalfinder/internal/config"
	"github.com/ca-srg/halalfinder/internal/mcpserver"
)

var (
	mcpServerHost   string
	mcpServerPort   int
	mcpAllowedIPs   []string
	mcpTrustedProxy []string
	mcpEnableIPAuth bool
	mcpToolName     string
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start MCP (Model Context Protocol) server for restaurant search",
	Long: `
Start an MCP server that exposes the restaurant search as a tool that
MCP-compatible clients (desktop assistants, IDEs) can call.

The server provides a "find_alcohol_free_restaurants" tool taking an address
or a latitude/longitude pair, an optional limit and include_phone flag.
It is served over the streamable HTTP transport at / and /mcp.

Configuration is loaded from environment variables (see README for details).

Examples:
  halalfinder mcp-server                                    # Start server with default settings
  halalfinder mcp-server --port 9000                        # Use custom port
  halalfinder mcp-server --host 0.0.0.0 --enable-ip-auth=false # Allow all IPs (not recommended)
  halalfinder mcp-server --allowed-ips "192.168.1.0/24"     # Allow specific IP range
  halalfinder mcp-server --trusted-proxies "10.0.0.5"       # Honor X-Forwarded-For from a reverse proxy
`,
	RunE: runMCPServer,
}

func init() {
	mcpServerCmd.Flags().StringVar(&mcpServerHost, "host", "localhost", "Server host address")
	mcpServerCmd.Flags().IntVar(&mcpServerPort, "port", 8080, "Server port")
	mcpServerCmd.Flags().StringSliceVar(&mcpAllowedIPs, "allowed-ips", []string{"127.0.0.1", "::1"}, "Comma-separated list of allowed IP addresses/ranges")
	mcpServerCmd.Flags().StringSliceVar(&mcpTrustedProxy, "trusted-proxies", nil, "Comma-separated list of proxy IPs/ranges whose X-Forwarded-For header is honored")
	mcpServerCmd.Flags().BoolVar(&mcpEnableIPAuth, "enable-ip-auth", true, "Enable IP-based authentication")
	mcpServerCmd.Flags().StringVar(&mcpToolName, "tool-name", mcpserver.DefaultToolName, "Name of the registered search tool")
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override configuration with command line flags if provided
	if cmd.Flags().Changed("host") {
		cfg.MCPServerHost = mcpServerHost
	}
	if cmd.Flags().Changed("port") {
		cfg.MCPServerPort = mcpServerPort
	}
	if cmd.Flags().Changed("allowed-ips") {
		cfg.MCPAllowedIPs = mcpAllowedIPs
	}
	if cmd.Flags().Changed("trusted-proxies") {
		cfg.MCPTrustedProxies = mcpTrustedProxy
	}
	if cmd.Flags().Changed("enable-ip-auth") {
		cfg.MCPIPAuthEnabled = mcpEnableIPAuth
	}
	if cmd.Flags().Changed("tool-name") {
		cfg.MCPToolName = mcpToolName
	}

	logger := log.New(os.Stdout, "[MCP Server] ", log.LstdFlags)

	serverConfig, err := mcpserver.NewServerConfigFromTypes(cfg)
	if err != nil {
		return fmt.Errorf("invalid MCP server configuration: %w", err)
	}
	serverConfig.Version = Version

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	var enricher mcpserver.PhoneEnricher
	if e := a.phoneEnricher(); e != nil {
		enricher = e
	}
	adapter := mcpserver.NewRestaurantSearchToolAdapter(a.orchestrator, enricher, serverConfig.ToolName, serverConfig.SearchTimeout)
	adapter.SetLogger(log.New(os.Stdout, "[RestaurantSearchTool] ", log.LstdFlags))

	server, err := mcpserver.NewServerWrapper(serverConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create server wrapper: %w", err)
	}
	server.RegisterSearchTool(mcpserver.NewRestaurantSearchHandler(adapter))

	if serverConfig.IPAuthEnabled {
		logger.Printf("IP authentication enabled for IPs: %v", serverConfig.AllowedIPs)
		if len(serverConfig.TrustedProxies) > 0 {
			logger.Printf("Forwarding headers honored from proxies: %v", serverConfig.TrustedProxies)
		}
	} else {
		logger.Printf("WARNING: IP authentication disabled, the server accepts any client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx)
}
