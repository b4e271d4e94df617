// Package geo holds the great-circle prefilter used before calling a routing API.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are finite and in range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Rounded returns the point rounded to 6 decimal digits.
func (p Point) Rounded() Point {
	return Point{Lat: Round6(p.Lat), Lng: Round6(p.Lng)}
}

// Round6 rounds to 6 decimal digits.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Candidate is an item kept by Filter with its rounded location and distance.
type Candidate[T any] struct {
	Item       T
	Point      Point
	DistanceKm float64
}

// Filter keeps the items within radiusKm of origin, nearest first, at most max of them.
// Coordinates are rounded to 6 decimals before measuring; items with a missing or
// non-finite location are dropped. Ties keep input order. max <= 0 means no cap.
func Filter[T any](origin Point, items []T, locate func(T) (Point, bool), radiusKm float64, max int) []Candidate[T] {
	origin = origin.Rounded()
	if !origin.Valid() {
		return nil
	}
	out := make([]Candidate[T], 0, len(items))
	for _, item := range items {
		p, ok := locate(item)
		if !ok || !p.Valid() {
			continue
		}
		p = p.Rounded()
		d := HaversineKm(origin, p)
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate[T]{Item: item, Point: p, DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
