package geo

import (
	"fmt"
	"math"

	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean earth radius shared by both distance methods
const EarthRadiusMeters = 6371000.0

// DistanceFunc computes the great-circle distance between two coordinates in meters
type DistanceFunc func(a, b types.Coordinate) (float64, error)

// Spherical computes the great-circle distance with the s2 spherical geometry package
func Spherical(a, b types.Coordinate) (float64, error) {
	from := s2.LatLngFromDegrees(a.Lat, a.Lng)
	to := s2.LatLngFromDegrees(b.Lat, b.Lng)
	if !from.IsValid() || !to.IsValid() {
		return 0, fmt.Errorf("invalid coordinate pair %s -> %s", a, b)
	}

	meters := from.Distance(to).Radians() * EarthRadiusMeters
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return 0, fmt.Errorf("distance is not finite for %s -> %s", a, b)
	}
	return meters, nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Haversine computes the distance between two points in meters
func Haversine(a, b types.Coordinate) float64 {
	lat1Rad := toRadians(a.Lat)
	lat2Rad := toRadians(b.Lat)

	dLat := lat2Rad - lat1Rad
	dLon := toRadians(b.Lng) - toRadians(a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// WithFallback returns the primary distance, or Haversine when the primary fails
func WithFallback(primary DistanceFunc) func(a, b types.Coordinate) float64 {
	if primary == nil {
		primary = Spherical
	}
	return func(a, b types.Coordinate) float64 {
		if d, err := primary(a, b); err == nil {
			return d
		}
		return Haversine(a, b)
	}
}

// Distance is the default distance with fallback
func Distance(a, b types.Coordinate) float64 {
	return WithFallback(Spherical)(a, b)
}

// FormatMeters renders a distance as "850 m" or "1.2 km"
func FormatMeters(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
