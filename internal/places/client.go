package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"
)

var placesTracer = otel.Tracer("halalfinder/places")

// Client talks to the Google Places and Geocoding web services
type Client struct {
	maps        *maps.Client
	rateLimiter *rate.Limiter
	config      *Config
	logger      *log.Logger
}

// Config holds the client settings
type Config struct {
	APIKey         string
	BaseURL        string
	Language       string
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	HTTPClient     *http.Client
}

// NewConfigFromTypes extracts the client settings from the application config
func NewConfigFromTypes(cfg *types.Config) *Config {
	return &Config{
		APIKey:         cfg.PlacesAPIKey,
		BaseURL:        cfg.PlacesBaseURL,
		Language:       cfg.PlacesLanguage,
		RateLimit:      cfg.PlacesRateLimit,
		RateBurst:      cfg.PlacesRateBurst,
		RequestTimeout: cfg.PlacesRequestTimeout,
		MaxRetries:     cfg.PlacesMaxRetries,
		RetryDelay:     cfg.PlacesRetryDelay,
	}
}

// NewClient creates a new Places client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("places API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		httpClient = &copied
	}
	httpClient.Transport = &statusTransport{next: httpClient.Transport}

	// Requests are paced by c.rateLimiter; the library limiter is off.
	mapsClient, err := maps.NewClient(
		maps.WithAPIKey(cfg.APIKey),
		maps.WithBaseURL(cfg.BaseURL),
		maps.WithHTTPClient(httpClient),
		maps.WithRateLimit(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &Client{
		maps:        mapsClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		config:      cfg,
		logger:      log.New(log.Writer(), "[places] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the client logger
func (c *Client) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// statusTransport turns non-2xx responses into HTTPStatusError
type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// call runs one API operation under a span with rate limiting and retries.
// attempt must replace any response it captured on every invocation.
func (c *Client) call(ctx context.Context, operation string, pageToken bool, attempt func(ctx context.Context) error) error {
	ctx, span := placesTracer.Start(ctx, "places."+operation)
	defer span.End()

	if token := types.RunTokenFrom(ctx); token != "" {
		span.SetAttributes(attribute.String("search.run_token", token))
	}

	err := c.executeWithRetry(ctx, operation, func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, fmt.Errorf("rate limit wait: %w", err))
		}
		if err := attempt(ctx); err != nil {
			return classifyError(err, pageToken)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+"_failed")
		return err
	}
	return nil
}

// executeWithRetry runs operation with exponential backoff on retryable errors
func (c *Client) executeWithRetry(ctx context.Context, operationName string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryDelay
			c.logger.Printf("Retrying %s after %v (attempt %d/%d)", operationName, delay, attempt, c.config.MaxRetries)

			select {
			case <-ctx.Done():
				return types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("%s succeeded after %d retries", operationName, attempt)
			}
			return nil
		}
		lastErr = err

		var searchErr *types.SearchError
		if !errors.As(err, &searchErr) || !searchErr.IsRetryable() {
			c.logger.Printf("%s failed with non-retryable error: %v", operationName, err)
			return err
		}
		c.logger.Printf("%s failed (attempt %d/%d): %v", operationName, attempt+1, c.config.MaxRetries+1, err)
	}

	return lastErr
}
