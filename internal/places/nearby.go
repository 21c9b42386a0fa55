package places

import (
	"context"
	"fmt"
	"strings"

	"github.com/ca-srg/halalfinder/internal/types"
	"googlemaps.github.io/maps"
)

// NearbySearch issues one keyword/radius scoped nearby search
func (c *Client) NearbySearch(ctx context.Context, query types.NearbyQuery) (*types.PlacesPage, error) {
	if query.RadiusMeters <= 0 {
		return nil, types.NewSearchError(types.ErrorTypeValidation, "radius must be positive", nil)
	}

	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: query.Location.Lat, Lng: query.Location.Lng},
		Radius:   uint(query.RadiusMeters),
		Keyword:  strings.TrimSpace(query.Keyword),
		Type:     maps.PlaceType(query.Category),
		Language: c.config.Language,
	}

	resp, err := c.nearby(ctx, "nearby_search", req, false)
	if err != nil {
		return nil, fmt.Errorf("nearby search (radius=%d keyword=%q): %w", query.RadiusMeters, query.Keyword, err)
	}
	return toPage(resp), nil
}

// NextPage fetches the continuation page identified by token
func (c *Client) NextPage(ctx context.Context, token string) (*types.PlacesPage, error) {
	if token == "" {
		return nil, types.NewSearchError(types.ErrorTypeValidation, "page token is required", nil)
	}

	req := &maps.NearbySearchRequest{PageToken: token, Language: c.config.Language}
	resp, err := c.nearby(ctx, "next_page", req, true)
	if err != nil {
		return nil, fmt.Errorf("nearby search continuation: %w", err)
	}
	return toPage(resp), nil
}

func (c *Client) nearby(ctx context.Context, operation string, req *maps.NearbySearchRequest, pageToken bool) (maps.PlacesSearchResponse, error) {
	var resp maps.PlacesSearchResponse
	err := c.call(ctx, operation, pageToken, func(ctx context.Context) error {
		r, err := c.maps.NearbySearch(ctx, req)
		resp = r
		if err != nil && isZeroResults(err) {
			resp = maps.PlacesSearchResponse{}
			return nil
		}
		return err
	})
	return resp, err
}

func toPage(resp maps.PlacesSearchResponse) *types.PlacesPage {
	page := &types.PlacesPage{
		Status:        types.PageStatusOK,
		Places:        make([]types.CandidatePlace, 0, len(resp.Results)),
		NextPageToken: resp.NextPageToken,
	}
	for _, result := range resp.Results {
		if result.PlaceID == "" {
			continue
		}
		page.Places = append(page.Places, toCandidate(result))
	}
	if len(page.Places) == 0 && page.NextPageToken == "" {
		page.Status = types.PageStatusNoMatches
	}
	return page
}
