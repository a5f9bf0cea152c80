package travel

import (
	"context"
	"math"

	"github.com/mschirtzinger/planner/internal/schema"
)

const earthRadiusKm = 6371.0

// LongHaulKm is the distance from which long-haul speeds apply.
const LongHaulKm = 20.0

// speeds in km/h, per mode, for city and long-haul trips
var speeds = map[schema.TransportMode]struct{ city, longHaul float64 }{
	schema.ModeWalking: {5, 5},
	schema.ModeCycling: {15, 20},
	schema.ModeDriving: {40, 80},
	schema.ModeTransit: {25, 60},
}

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Speed returns the average speed used for mode over distanceKm.
func Speed(mode schema.TransportMode, distanceKm float64) float64 {
	s, ok := speeds[mode]
	if !ok {
		s = speeds[schema.ModeDriving]
	}
	if distanceKm < LongHaulKm {
		return s.city
	}
	return s.longHaul
}

// Heuristic is the deterministic local estimator.
type Heuristic struct{}

// Estimate divides the great-circle distance by the mode's average speed,
// rounds up, and never returns less than MinMinutes. Without coordinates on
// both ends it returns DefaultMinutes.
func (Heuristic) Estimate(_ context.Context, from, to *schema.Location, mode schema.TransportMode) Estimate {
	if !from.HasCoordinates() || !to.HasCoordinates() {
		return Estimate{Minutes: DefaultMinutes, Source: "default"}
	}
	km := Haversine(*from.Latitude, *from.Longitude, *to.Latitude, *to.Longitude)
	minutes := int(math.Ceil(km / Speed(mode, km) * 60))
	if minutes < MinMinutes {
		minutes = MinMinutes
	}
	return Estimate{Minutes: minutes, DistanceKm: &km, Source: "heuristic"}
}
