package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	appconfig "github.com/ca-srg/halalfinder/internal/config"
	"github.com/ca-srg/halalfinder/internal/locate"
	"github.com/ca-srg/halalfinder/internal/metrics"
	"github.com/ca-srg/halalfinder/internal/observability"
	"github.com/ca-srg/halalfinder/internal/places"
	"github.com/ca-srg/halalfinder/internal/search"
	"github.com/ca-srg/halalfinder/internal/types"
)

// app holds the collaborators shared by the search, webui and mcp-server commands
type app struct {
	cfg          *types.Config
	places       *places.Client
	orchestrator *search.Orchestrator
	enricher     *search.Enricher
	locator      locate.Locator
	shutdown     observability.ShutdownFunc
}

// newApp loads configuration and wires the search stack. Component logs go
// to logOut with per-component prefixes.
func newApp(cfg *types.Config, logOut io.Writer) (*app, error) {
	if err := appconfig.RequirePlacesAPIKey(cfg); err != nil {
		return nil, err
	}

	policy, err := appconfig.LoadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	shutdown, err := observability.Init(cfg, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics.Configure(cfg.StatsDBPath)
	if err := metrics.InitOTelMetrics(); err != nil {
		log.Printf("Warning: invocation metrics unavailable: %v", err)
	}

	client, err := places.NewClient(places.NewConfigFromTypes(cfg))
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("failed to create places client: %w", err)
	}
	client.SetLogger(log.New(logOut, "[places] ", log.LstdFlags))

	searchLogger := log.New(logOut, "[search] ", log.LstdFlags)
	enricher := search.NewEnricher(client, cfg.EnrichConcurrency, searchLogger)

	opts := search.Options{
		PageDelay: cfg.SearchPageDelay,
		Logger:    searchLogger,
	}
	if cfg.EnrichPhoneNumbers {
		opts.Enricher = enricher
	}

	orchestrator, err := search.NewOrchestrator(client, client, policy, opts)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("failed to create search orchestrator: %w", err)
	}

	locator := locate.FromConfig(cfg, log.New(logOut, "[locate] ", log.LstdFlags))

	return &app{
		cfg:          cfg,
		places:       client,
		orchestrator: orchestrator,
		enricher:     enricher,
		locator:      locator,
		shutdown:     shutdown,
	}, nil
}

// phoneEnricher returns the enricher for on-request phone lookups, or nil
// when every run already enriches.
func (a *app) phoneEnricher() *search.Enricher {
	if a.cfg.EnrichPhoneNumbers {
		return nil
	}
	return a.enricher
}

// Close flushes telemetry and closes the usage store
func (a *app) Close() {
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			log.Printf("Warning: telemetry shutdown: %v", err)
		}
	}
	if err := metrics.Close(); err != nil {
		log.Printf("Warning: failed to close stats store: %v", err)
	}
}

// componentLogOutput returns where component logs are written
func componentLogOutput(verbose bool) io.Writer {
	if verbose {
		return os.Stderr
	}
	return io.Discard
}
