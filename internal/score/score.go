// Package score aggregates plan-level metrics and the 0-100 efficiency
// rating shown on operations dashboards.
package score

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"routeflow/internal/model"
)

// Weights shape the efficiency rating. They must sum to 1.
type Weights struct {
	Assignment  float64 // share of stops placed on a route
	Utilization float64 // service time as a share of route span
	Compliance  float64 // share of route stops inside their windows
}

var DefaultWeights = Weights{Assignment: 0.5, Utilization: 0.3, Compliance: 0.2}

// Summary is the aggregate the Scorer produces for one plan.
type Summary struct {
	TotalDistance   float64
	TotalDuration   float64
	AssignedStops   int
	UnassignedStops int
	Score           float64
}

// Score computes plan totals and the normalized efficiency rating. Pure
// function of the assembled routes; an empty plan scores zero.
func Score(routes []model.Route, unassigned []model.UnassignedStop, serviceMin map[string]float64, w Weights) Summary {
	var sum Summary
	sum.UnassignedStops = len(unassigned)

	if len(routes) == 0 {
		return sum
	}

	distances := make([]float64, 0, len(routes))
	durations := make([]float64, 0, len(routes))
	serviceTotal := 0.0
	compliant := 0
	for _, r := range routes {
		distances = append(distances, r.TotalDistance)
		durations = append(durations, r.TotalDurationMin)
		sum.AssignedStops += len(r.Stops)
		for _, rs := range r.Stops {
			serviceTotal += serviceMin[rs.StopID]
			if rs.Feasible {
				compliant++
			}
		}
	}
	sum.TotalDistance = floats.Sum(distances)
	sum.TotalDuration = floats.Sum(durations)

	totalStops := sum.AssignedStops + sum.UnassignedStops
	assignment := 0.0
	if totalStops > 0 {
		assignment = float64(sum.AssignedStops) / float64(totalStops)
	}
	utilization := 0.0
	if sum.TotalDuration > 0 {
		utilization = math.Min(1, serviceTotal/sum.TotalDuration)
	}
	compliance := 0.0
	if sum.AssignedStops > 0 {
		compliance = float64(compliant) / float64(sum.AssignedStops)
	}

	sum.Score = math.Round(100 * (w.Assignment*assignment + w.Utilization*utilization + w.Compliance*compliance))
	if sum.Score > 100 {
		sum.Score = 100
	}
	if sum.Score < 0 {
		sum.Score = 0
	}
	return sum
}

// RouteScore rates one route in isolation, for per-route display.
func RouteScore(r model.Route, serviceMin map[string]float64, w Weights) float64 {
	s := Score([]model.Route{r}, nil, serviceMin, w)
	return s.Score
}
