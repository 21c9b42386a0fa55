package places

import (
	"context"
	"fmt"
	"strings"

	"github.com/ca-srg/halalfinder/internal/types"
	"googlemaps.github.io/maps"
)

// Geocode resolves free text into candidate coordinates. ZERO_RESULTS yields an empty slice.
func (c *Client) Geocode(ctx context.Context, address string) ([]types.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, types.NewSearchError(types.ErrorTypeValidation, "address is required", nil)
	}

	req := &maps.GeocodingRequest{Address: address, Language: c.config.Language}
	results, err := c.geocode(ctx, "geocode", func(ctx context.Context) ([]maps.GeocodingResult, error) {
		return c.maps.Geocode(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", address, err)
	}
	return results, nil
}

// ReverseGeocode resolves a coordinate into address matches
func (c *Client) ReverseGeocode(ctx context.Context, at types.Coordinate) ([]types.GeocodeResult, error) {
	req := &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: at.Lat, Lng: at.Lng},
		Language: c.config.Language,
	}
	results, err := c.geocode(ctx, "reverse_geocode", func(ctx context.Context) ([]maps.GeocodingResult, error) {
		return c.maps.ReverseGeocode(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("reverse geocode %s: %w", at, err)
	}
	return results, nil
}

func (c *Client) geocode(ctx context.Context, operation string, fetch func(context.Context) ([]maps.GeocodingResult, error)) ([]types.GeocodeResult, error) {
	var matches []maps.GeocodingResult
	err := c.call(ctx, operation, false, func(ctx context.Context) error {
		r, err := fetch(ctx)
		matches = r
		if err != nil && isZeroResults(err) {
			matches = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]types.GeocodeResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, toResult(match))
	}
	return results, nil
}
