package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/geo"
	"github.com/ca-srg/halalfinder/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	searchTracer = otel.Tracer("halalfinder/search")
	searchMeter  = otel.Meter("halalfinder/search")
)

// PlacesDirectory is the nearby search capability of the places provider
type PlacesDirectory interface {
	NearbySearch(ctx context.Context, query types.NearbyQuery) (*types.PlacesPage, error)
	NextPage(ctx context.Context, token string) (*types.PlacesPage, error)
}

// Geocoder translates between free text addresses and coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) ([]types.GeocodeResult, error)
	ReverseGeocode(ctx context.Context, at types.Coordinate) ([]types.GeocodeResult, error)
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	PageDelay time.Duration
	Distance  geo.DistanceFunc
	Enricher  *Enricher
	Logger    *log.Logger
	// Sleep waits before a continuation request; tests replace it
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator runs the multi-pass nearby search of one policy
type Orchestrator struct {
	directory PlacesDirectory
	geocoder  Geocoder
	policy    types.SearchPolicy
	steps     []Step
	filter    *Filter
	pageDelay time.Duration
	distance  func(a, b types.Coordinate) float64
	sleep     func(ctx context.Context, d time.Duration) error
	enricher  *Enricher
	logger    *log.Logger

	requests metric.Int64Counter
	failures metric.Int64Counter
}

// DefaultPageDelay is the wait before each continuation request
const DefaultPageDelay = 200 * time.Millisecond

// NewOrchestrator creates an orchestrator for policy
func NewOrchestrator(directory PlacesDirectory, geocoder Geocoder, policy types.SearchPolicy, opts Options) (*Orchestrator, error) {
	if directory == nil {
		return nil, fmt.Errorf("places directory cannot be nil")
	}
	if len(policy.Radii) == 0 || len(policy.Keywords) == 0 {
		return nil, fmt.Errorf("policy needs at least one radius and one keyword")
	}
	if policy.ResultCap <= 0 {
		return nil, fmt.Errorf("policy result cap must be positive")
	}

	o := &Orchestrator{
		directory: directory,
		geocoder:  geocoder,
		policy:    policy,
		steps:     Steps(policy),
		filter:    NewFilter(policy),
		pageDelay: opts.PageDelay,
		distance:  geo.WithFallback(opts.Distance),
		sleep:     opts.Sleep,
		enricher:  opts.Enricher,
		logger:    opts.Logger,
	}
	if o.pageDelay <= 0 {
		o.pageDelay = DefaultPageDelay
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.logger == nil {
		o.logger = log.New(log.Writer(), "[search] ", log.LstdFlags)
	}

	var err error
	if o.requests, err = searchMeter.Int64Counter("halalfinder.places.requests",
		metric.WithDescription("Places directory requests issued by search runs")); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if o.failures, err = searchMeter.Int64Counter("halalfinder.places.failures",
		metric.WithDescription("Places directory requests that failed and were skipped")); err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}
	return o, nil
}

// Policy returns the policy the orchestrator runs
func (o *Orchestrator) Policy() types.SearchPolicy {
	return o.policy
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runCounters tracks request outcomes across the steps of one run
type runCounters struct {
	succeeded int
	failed    int
}

// Run searches around loc and returns the ranked, capped results
func (o *Orchestrator) Run(ctx context.Context, loc types.Coordinate) ([]types.ResultEntry, error) {
	ctx, span := searchTracer.Start(ctx, "search.run")
	defer span.End()

	origin, err := types.NewCoordinate(loc.Lat, loc.Lng)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_location")
		return nil, types.NewSearchError(types.ErrorTypeValidation, types.MessageInvalidSearchRequest, err)
	}

	span.SetAttributes(
		attribute.String("search.location", origin.String()),
		attribute.Int("search.steps", len(o.steps)),
		attribute.Int("search.result_cap", o.policy.ResultCap),
	)
	if token := types.RunTokenFrom(ctx); token != "" {
		span.SetAttributes(attribute.String("search.run_token", token))
	}

	start := time.Now()
	agg := newAggregate()
	counters := &runCounters{}

	stats, err := Expand(ctx, o.steps,
		func() bool { return agg.len() >= o.policy.ResultCap },
		func(ctx context.Context, step Step) error {
			return o.runStep(ctx, origin, step, agg, counters)
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		return nil, fmt.Errorf("search run interrupted: %w", err)
	}

	span.SetAttributes(
		attribute.Int("search.steps_visited", stats.Visited),
		attribute.Int("search.requests_failed", counters.failed),
		attribute.Int("search.candidates", agg.len()),
	)

	if agg.len() == 0 {
		noResults := o.noResultsError(counters, stats.Failures)
		span.RecordError(noResults)
		span.SetStatus(codes.Error, string(types.ErrorTypeNoResults))
		o.logger.Printf("No results at %s after %d steps (%d requests ok, %d failed)",
			origin, stats.Visited, counters.succeeded, counters.failed)
		return nil, noResults
	}

	results := rank(origin, agg.entries, o.distance, o.policy.ResultCap)
	if o.enricher != nil {
		results = o.enricher.Enrich(ctx, results)
	}

	o.logger.Printf("Search at %s returned %d results from %d candidates in %v (%d/%d steps)",
		origin, len(results), agg.len(), time.Since(start).Round(time.Millisecond), stats.Visited, len(o.steps))
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

func (o *Orchestrator) noResultsError(counters *runCounters, failures []error) error {
	if counters.succeeded == 0 && counters.failed > 0 {
		return types.NewSearchError(types.ErrorTypeNoResults, types.MessageProviderExhausted, errors.Join(failures...))
	}
	return types.NewSearchError(types.ErrorTypeNoResults, types.MessageNoResults, nil)
}

// runStep issues one nearby search and drains its continuation pages
func (o *Orchestrator) runStep(ctx context.Context, origin types.Coordinate, step Step, agg *aggregate, counters *runCounters) error {
	ctx, span := searchTracer.Start(ctx, "search.step")
	defer span.End()
	span.SetAttributes(
		attribute.Int("search.radius_meters", step.RadiusMeters),
		attribute.String("search.keyword", step.Keyword),
	)

	stepAttrs := metric.WithAttributes(attribute.Int("radius", step.RadiusMeters))

	o.requests.Add(ctx, 1, stepAttrs)
	page, err := o.directory.NearbySearch(ctx, types.NearbyQuery{
		Location:     origin,
		RadiusMeters: step.RadiusMeters,
		Category:     o.policy.Category,
		Keyword:      step.Keyword,
	})
	if err != nil {
		return o.stepFailed(ctx, span, step, counters, stepAttrs, err)
	}
	counters.succeeded++

	pages := 1
	added := o.mergePage(agg, page)
	for page.HasMore() && agg.len() < o.policy.ResultCap {
		if err := o.sleep(ctx, o.pageDelay); err != nil {
			return err
		}

		o.requests.Add(ctx, 1, stepAttrs)
		page, err = o.directory.NextPage(ctx, page.NextPageToken)
		if err != nil {
			return o.stepFailed(ctx, span, step, counters, stepAttrs, err)
		}
		counters.succeeded++
		pages++
		added += o.mergePage(agg, page)
	}

	span.SetAttributes(
		attribute.Int("search.pages", pages),
		attribute.Int("search.added", added),
	)
	return nil
}

func (o *Orchestrator) stepFailed(ctx context.Context, span trace.Span, step Step, counters *runCounters, attrs metric.AddOption, err error) error {
	counters.failed++
	if ctx.Err() == nil {
		o.failures.Add(ctx, 1, attrs)
		o.logger.Printf("Skipping radius=%d keyword=%q: %v", step.RadiusMeters, step.Keyword, err)
	}
	span.RecordError(err)
	return err
}

// mergePage filters page and merges it into agg
func (o *Orchestrator) mergePage(agg *aggregate, page *types.PlacesPage) int {
	if page == nil || page.Status == types.PageStatusNoMatches {
		return 0
	}
	return agg.merge(o.filter.Apply(page.Places))
}

// RunFromAddress geocodes text and searches around the first match
func (o *Orchestrator) RunFromAddress(ctx context.Context, text string) ([]types.ResultEntry, *types.GeocodeResult, error) {
	ctx, span := searchTracer.Start(ctx, "search.run_from_address")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" || o.geocoder == nil {
		err := types.NewSearchError(types.ErrorTypeLocationNotFound, types.MessageLocationNotFound, errors.New("no address given"))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.ErrorTypeLocationNotFound))
		return nil, nil, err
	}

	matches, err := o.geocoder.Geocode(ctx, text)
	if err != nil || len(matches) == 0 {
		if err == nil {
			err = fmt.Errorf("no geocoding match for %q", text)
		}
		notFound := types.NewSearchError(types.ErrorTypeLocationNotFound, types.MessageLocationNotFound, err)
		span.RecordError(notFound)
		span.SetStatus(codes.Error, string(types.ErrorTypeLocationNotFound))
		return nil, nil, notFound
	}

	match := matches[0]
	span.SetAttributes(attribute.String("search.resolved_address", match.FormattedAddress))

	results, err := o.Run(ctx, match.Location)
	if err != nil {
		return nil, &match, err
	}
	return results, &match, nil
}

// Describe returns a display label for loc. Failures yield an empty label.
func (o *Orchestrator) Describe(ctx context.Context, loc types.Coordinate) string {
	if o.geocoder == nil {
		return ""
	}
	matches, err := o.geocoder.ReverseGeocode(ctx, loc)
	if err != nil {
		o.logger.Printf("Reverse geocoding %s failed: %v", loc, err)
		return ""
	}
	if len(matches) == 0 {
		return ""
	}
	return matches[0].FormattedAddress
}
