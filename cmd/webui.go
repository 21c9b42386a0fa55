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
	"github.com/ca-srg/halalfinder/internal/webui"
)

var (
	webuiHost string
	webuiPort int
)

var webuiCmd = &cobra.Command{
	Use:   "webui",
	Short: "Start the Web UI server for restaurant searches",
	Long: `
The webui command starts a local web server that provides:
- A search form for an address, a coordinate or the device location
- Results sorted by distance with rating, opening state and phone
- A JSON API (/api/search, /api/status, /api/history, /api/errors)
- Live run updates over Server-Sent Events (/sse/events)

Starting a new search supersedes the one in progress; its results are discarded.

Example:
  halalfinder webui                     # Start with defaults (localhost:8081)
  halalfinder webui --port 8080         # Use custom port
`,
	RunE: runWebUI,
}

func init() {
	webuiCmd.Flags().StringVar(&webuiHost, "host", "localhost",
		"Host to bind the web server")
	webuiCmd.Flags().IntVarP(&webuiPort, "port", "p", 8081,
		"Port to bind the web server")
}

func runWebUI(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stdout, "[webui] ", log.LstdFlags)

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.WebUIHost = webuiHost
	}
	if cmd.Flags().Changed("port") {
		cfg.WebUIPort = webuiPort
	}

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := webui.Dependencies{
		Searcher:        a.orchestrator,
		DefaultLocation: cfg.DefaultLocation(),
	}
	if cfg.DeviceLocationEnabled {
		deps.Locator = a.locator
	}
	if enricher := a.phoneEnricher(); enricher != nil {
		deps.Enricher = enricher
	}

	server, err := webui.NewServer(webui.NewServerConfigFromTypes(cfg), deps, logger)
	if err != nil {
		return fmt.Errorf("failed to create webui server: %w", err)
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return server.Run(ctx)
}
