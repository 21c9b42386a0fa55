package places

import (
	"github.com/ca-srg/halalfinder/internal/types"
	"googlemaps.github.io/maps"
)

func toCoordinate(l maps.LatLng) types.Coordinate {
	return types.Coordinate{Lat: l.Lat, Lng: l.Lng}
}

// toCandidate converts a nearby search result. A zero price level is
// indistinguishable from an absent one and is left unset.
func toCandidate(r maps.PlacesSearchResult) types.CandidatePlace {
	c := types.CandidatePlace{
		ID:               r.PlaceID,
		Name:             r.Name,
		Address:          r.Vicinity,
		Location:         toCoordinate(r.Geometry.Location),
		Rating:           float64(r.Rating),
		UserRatingsTotal: r.UserRatingsTotal,
		Types:            r.Types,
		BusinessStatus:   r.BusinessStatus,
	}
	if c.Address == "" {
		c.Address = r.FormattedAddress
	}
	if r.PriceLevel > 0 {
		level := r.PriceLevel
		c.PriceLevel = &level
	}
	if r.OpeningHours != nil {
		c.OpenNow = r.OpeningHours.OpenNow
	}
	return c
}

func toDetails(r maps.PlaceDetailsResult) *types.PlaceDetails {
	return &types.PlaceDetails{
		ID:                 r.PlaceID,
		Phone:              r.FormattedPhoneNumber,
		InternationalPhone: r.InternationalPhoneNumber,
		Website:            r.Website,
	}
}

func toResult(r maps.GeocodingResult) types.GeocodeResult {
	out := types.GeocodeResult{
		FormattedAddress: r.FormattedAddress,
		Location:         toCoordinate(r.Geometry.Location),
		PlaceID:          r.PlaceID,
	}
	for _, c := range r.AddressComponents {
		out.Components = append(out.Components, types.AddressComponent{
			LongName:  c.LongName,
			ShortName: c.ShortName,
			Types:     c.Types,
		})
	}
	return out
}
