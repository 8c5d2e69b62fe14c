package domain

import (
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used for haversine distances.
const earthRadiusMeters = 6371008.8

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks the coordinate is within WGS84 bounds.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return fmt.Errorf("%w: coordinate is NaN", ErrInvalidInput)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidInput, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidInput, p.Lon)
	}
	return nil
}

// DistanceMeters returns the great-circle distance to q.
func (p GeoPoint) DistanceMeters(q GeoPoint) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
