package places

import (
	"context"
	"fmt"

	"github.com/ca-srg/halalfinder/internal/types"
	"googlemaps.github.io/maps"
)

// DefaultDetailFields are requested when the caller passes none
var DefaultDetailFields = []string{
	"place_id",
	"formatted_phone_number",
	"international_phone_number",
	"website",
}

// PlaceDetails fetches selected detail fields for one place
func (c *Client) PlaceDetails(ctx context.Context, placeID string, fields []string) (*types.PlaceDetails, error) {
	if placeID == "" {
		return nil, types.NewSearchError(types.ErrorTypeValidation, "place id is required", nil)
	}
	if len(fields) == 0 {
		fields = DefaultDetailFields
	}

	req := &maps.PlaceDetailsRequest{
		PlaceID:  placeID,
		Language: c.config.Language,
		Fields:   make([]maps.PlaceDetailsFieldMask, 0, len(fields)),
	}
	for _, field := range fields {
		req.Fields = append(req.Fields, maps.PlaceDetailsFieldMask(field))
	}

	var result maps.PlaceDetailsResult
	err := c.call(ctx, "place_details", false, func(ctx context.Context) error {
		r, err := c.maps.PlaceDetails(ctx, req)
		result = r
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("place details %s: %w", placeID, err)
	}

	details := toDetails(result)
	if details.ID == "" {
		details.ID = placeID
	}
	return details, nil
}
