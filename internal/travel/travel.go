// Package travel estimates transit time between two event locations.
//
// A Matrix estimator asks an external distance-matrix service and falls back
// to the Heuristic estimator (great-circle distance over an average speed)
// whenever the service is unconfigured, failing, or has no route.
package travel

import (
	"context"

	"github.com/mschirtzinger/planner/internal/schema"
)

// DefaultMinutes is returned when neither endpoint can be placed on a map.
const DefaultMinutes = 15

// MinMinutes is the floor for any heuristic estimate.
const MinMinutes = 5

// Estimate is the outcome of one travel lookup.
type Estimate struct {
	Minutes    int
	DistanceKm *float64
	// Source names the estimator that produced the value ("matrix",
	// "heuristic" or "default").
	Source string
}

// Estimator returns a travel duration between two locations. Implementations
// never fail: every error path resolves to a fallback estimate.
type Estimator interface {
	Estimate(ctx context.Context, from, to *schema.Location, mode schema.TransportMode) Estimate
}
