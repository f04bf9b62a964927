// Package calculator provides geodesic distance calculations using the Haversine formula
// to compute great-circle ground distances, in meters, between geographic coordinates.
package calculator

import (
	"math"
)

const (
	// EarthRadiusM is the Earth's mean radius in meters
	EarthRadiusM = 6371000.0
)

// Location represents a GPS coordinate in decimal degrees
type Location struct {
	Latitude  float64
	Longitude float64
}

// Haversine calculates the great-circle distance in meters between two points
// on the Earth's surface given their latitudes and longitudes in decimal degrees
//
// Formula:
// a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
// c = 2 ⋅ asin( √a )
// d = R ⋅ c
//
// where:
// φ is latitude, λ is longitude, R is earth's mean radius (6,371,000 m)
// Δφ is the difference in latitude, Δλ is the difference in longitude
//
// Inputs are not range checked.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert latitude and longitude from degrees to radians
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)

	// Calculate differences
	deltaLat := degreesToRadians(lat2 - lat1)
	deltaLon := degreesToRadians(lon2 - lon1)

	// Apply Haversine formula
	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Floating-point overshoot can push √a just past 1 for antipodal points.
	c := 2 * math.Asin(clamp(math.Sqrt(a), -1, 1))

	return EarthRadiusM * c
}

// Distance returns the Haversine distance in meters between two locations
func Distance(a, b Location) float64 {
	return Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// degreesToRadians converts degrees to radians
func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BoundingBox is the axis-aligned extent of a set of locations
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Bounds computes the bounding box of the given locations.
// The second return value is false when locations is empty.
func Bounds(locations []Location) (BoundingBox, bool) {
	if len(locations) == 0 {
		return BoundingBox{}, false
	}

	box := BoundingBox{
		MinLat: locations[0].Latitude,
		MaxLat: locations[0].Latitude,
		MinLng: locations[0].Longitude,
		MaxLng: locations[0].Longitude,
	}

	for _, loc := range locations[1:] {
		box.MinLat = math.Min(box.MinLat, loc.Latitude)
		box.MaxLat = math.Max(box.MaxLat, loc.Latitude)
		box.MinLng = math.Min(box.MinLng, loc.Longitude)
		box.MaxLng = math.Max(box.MaxLng, loc.Longitude)
	}

	return box, true
}

// MetersToDegrees converts a ground distance to the equivalent arc in degrees
// along a great circle. Used to size search windows around a point.
func MetersToDegrees(meters float64) float64 {
	return (meters / EarthRadiusM) * (180 / math.Pi)
}
