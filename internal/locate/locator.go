package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
)

// Locator resolves the current device location
type Locator interface {
	Locate(ctx context.Context) (types.Coordinate, error)
}

// IPLocator resolves the device location from its public IP address using
// an ip-api.com compatible JSON endpoint.
type IPLocator struct {
	enabled    bool
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
}

type ipLocation struct {
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
}

// NewIPLocator creates an IP based locator from the application config
func NewIPLocator(cfg *types.Config) *IPLocator {
	timeout := cfg.DeviceLocationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IPLocator{
		enabled:    cfg.DeviceLocationEnabled,
		endpoint:   cfg.DeviceLocationURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     log.New(log.Writer(), "[locate] ", log.LstdFlags),
	}
}

// SetLogger replaces the locator logger
func (l *IPLocator) SetLogger(logger *log.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Locate performs one lookup. It never retries.
func (l *IPLocator) Locate(ctx context.Context) (types.Coordinate, error) {
	if !l.enabled {
		return types.Coordinate{}, types.NewSearchError(types.ErrorTypeDeviceLocationDenied, types.MessageDeviceDenied,
			errors.New("device location is disabled"))
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return types.Coordinate{}, unavailable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return types.Coordinate{}, types.NewSearchError(types.ErrorTypeDeviceLocationTimeout, types.MessageDeviceTimeout, err)
		}
		return types.Coordinate{}, unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return types.Coordinate{}, types.NewSearchError(types.ErrorTypeDeviceLocationDenied, types.MessageDeviceDenied,
			fmt.Errorf("location service refused the request: HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return types.Coordinate{}, unavailable(fmt.Errorf("location service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload ipLocation
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if isTimeout(ctx, err) {
			return types.Coordinate{}, types.NewSearchError(types.ErrorTypeDeviceLocationTimeout, types.MessageDeviceTimeout, err)
		}
		return types.Coordinate{}, unavailable(fmt.Errorf("failed to decode location response: %w", err))
	}
	if payload.Status != "" && payload.Status != "success" {
		return types.Coordinate{}, unavailable(fmt.Errorf("location lookup failed: %s", payload.Message))
	}

	coord, err := types.NewCoordinate(payload.Lat, payload.Lon)
	if err != nil {
		return types.Coordinate{}, unavailable(err)
	}
	l.logger.Printf("Resolved device location %s (%s, %s)", coord, payload.City, payload.Country)
	return coord, nil
}

func unavailable(err error) error {
	return types.NewSearchError(types.ErrorTypeDeviceLocationUnavailable, types.MessageDeviceUnavailable, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StaticLocator always returns the same coordinate
type StaticLocator struct {
	At types.Coordinate
}

func (s StaticLocator) Locate(ctx context.Context) (types.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return types.Coordinate{}, types.NewSearchError(types.ErrorTypeDeviceLocationTimeout, types.MessageDeviceTimeout, err)
	}
	return s.At, nil
}

type fallbackLocator struct {
	primary   Locator
	secondary Locator
	logger    *log.Logger
}

// Fallback returns a locator that tries primary and then secondary.
// The primary error is returned when both fail.
func Fallback(primary, secondary Locator, logger *log.Logger) Locator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &fallbackLocator{primary: primary, secondary: secondary, logger: logger}
}

func (f *fallbackLocator) Locate(ctx context.Context) (types.Coordinate, error) {
	coord, err := f.primary.Locate(ctx)
	if err == nil {
		return coord, nil
	}
	f.logger.Printf("Device location failed, using fallback: %v", err)

	coord, fallbackErr := f.secondary.Locate(ctx)
	if fallbackErr != nil {
		return types.Coordinate{}, err
	}
	return coord, nil
}

// FromConfig builds the locator the commands use. A nil logger keeps the default.
func FromConfig(cfg *types.Config, logger *log.Logger) Locator {
	ip := NewIPLocator(cfg)
	ip.SetLogger(logger)
	if !cfg.DeviceLocationStatic {
		return ip
	}
	return Fallback(ip, StaticLocator{At: cfg.DefaultLocation()}, ip.logger)
}
