// Package geo ranks field teams by great-circle distance. All functions are
// pure; coordinate validation is the caller's job via model.Location.Validate.
package geo

import (
	"math"
	"sort"

	"github.com/sosgrid/sosd/core/model"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

// DistanceKm returns the great-circle distance between a and b in kilometres.
func DistanceKm(a, b model.Location) float64 {
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Latitude))*math.Cos(radians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Match pairs a candidate team with its distance from the ranking origin.
// DistanceKm carries the unrounded value; rounding is a display concern.
type Match struct {
	Team       model.TeamPresence `json:"team"`
	DistanceKm float64            `json:"distance_km"`
}

// Rank orders candidates by ascending distance from origin. Candidates
// farther than maxKm are excluded; maxKm <= 0 disables the radius cut.
// limit caps the result size; limit <= 0 returns every match. Equal
// distances keep the input order.
func Rank(origin model.Location, candidates []model.TeamPresence, maxKm float64, limit int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		d := DistanceKm(origin, c.Location)
		if maxKm > 0 && d > maxKm {
			continue
		}
		matches = append(matches, Match{Team: c, DistanceKm: d})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// RoundKm rounds a distance to two decimal places for presentation.
func RoundKm(d float64) float64 { return math.Round(d*100) / 100 }
