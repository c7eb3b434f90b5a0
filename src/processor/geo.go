package processor

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	// routeSampleCap bounds the number of route lines handed to the map.
	routeSampleCap = 100
	// routeSampleSeed is fixed so two calls on the same view pick the same rows.
	routeSampleSeed = 42
)

// GeoPoint is one deduplicated origin or destination marker.
type GeoPoint struct {
	Location string  `json:"location"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// RouteLine is one origin→destination segment of the sampled overlay.
type RouteLine struct {
	BookingID string  `json:"booking_id"`
	OriginLat float64 `json:"origin_lat"`
	OriginLon float64 `json:"origin_lon"`
	DestLat   float64 `json:"dest_lat"`
	DestLon   float64 `json:"dest_lon"`
}

// NetworkSummary is the geographic view of one filtered view. Point sets
// and totals cover the full view; only Routes is sampled.
type NetworkSummary struct {
	Origins      []GeoPoint `json:"origins"`
	Destinations []GeoPoint `json:"destinations"`

	OriginCount      int     `json:"origin_count"`
	DestinationCount int     `json:"destination_count"`
	TotalDistanceKM  float64 `json:"total_distance_km"`

	Routes []RouteLine `json:"routes"`
}

// ParseLatLon parses a "lat,lon" string. On wrong token count or a
// non-numeric token both coordinates fall back to (0,0) and ok is false;
// the row is kept either way.
func ParseLatLon(s string) (lat, lon float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// SummarizeNetwork parses coordinates, deduplicates origin and destination
// points by location name (first occurrence wins), and draws the fixed-seed
// route sample. Derived coordinates live only in the summary; the view is
// not mutated.
func SummarizeNetwork(v FilteredView) NetworkSummary {
	summary := NetworkSummary{Routes: []RouteLine{}}
	n := v.Rows()
	if n == 0 {
		return summary
	}

	bookings := v.DF.Col(ColBookingID).Records()
	origins := v.DF.Col(ColOrigin).Records()
	destinations := v.DF.Col(ColDestination).Records()
	originCoords := v.DF.Col(ColOriginCoord).Records()
	destCoords := v.DF.Col(ColDestCoord).Records()
	dist := v.DF.Col(ColDistanceKM).Float()

	summary.TotalDistanceKM = floats.Sum(dist)

	seenOrigins := make(map[string]struct{})
	seenDests := make(map[string]struct{})
	for i := 0; i < n; i++ {
		if _, ok := seenOrigins[origins[i]]; !ok {
			seenOrigins[origins[i]] = struct{}{}
			lat, lon, _ := ParseLatLon(originCoords[i])
			summary.Origins = append(summary.Origins, GeoPoint{Location: origins[i], Lat: lat, Lon: lon})
		}
		if _, ok := seenDests[destinations[i]]; !ok {
			seenDests[destinations[i]] = struct{}{}
			lat, lon, _ := ParseLatLon(destCoords[i])
			summary.Destinations = append(summary.Destinations, GeoPoint{Location: destinations[i], Lat: lat, Lon: lon})
		}
	}
	summary.OriginCount = len(summary.Origins)
	summary.DestinationCount = len(summary.Destinations)

	for _, i := range sampleIndices(n) {
		oLat, oLon, _ := ParseLatLon(originCoords[i])
		dLat, dLon, _ := ParseLatLon(destCoords[i])
		summary.Routes = append(summary.Routes, RouteLine{
			BookingID: bookings[i],
			OriginLat: oLat,
			OriginLon: oLon,
			DestLat:   dLat,
			DestLon:   dLon,
		})
	}

	return summary
}

// sampleIndices returns min(routeSampleCap, n) row indices in ascending
// order. The seed is constant, so the same view always yields the same
// sample.
func sampleIndices(n int) []int {
	if n <= routeSampleCap {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	rng := rand.New(rand.NewSource(routeSampleSeed))
	idx := rng.Perm(n)[:routeSampleCap]
	sort.Ints(idx)
	return idx
}
