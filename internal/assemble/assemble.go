// Package assemble converts solver output into concrete route schedules.
package assemble

import (
	"github.com/google/uuid"

	"routeflow/internal/constraint"
	"routeflow/internal/model"
	"routeflow/internal/solver"
)

// Routes materializes each vehicle's final stop order into a Route with
// per-stop arrival and departure times. Pure transformation: arrival waits
// for the window to open, departure = arrival + service, and each leg's
// travel starts at the previous departure. Vehicles with no stops produce no
// route. The feasibility flag is recomputed from scratch here; with hard
// windows in the solver a false value indicates a solver defect, not a
// schedule the caller should dispatch.
func Routes(m *constraint.Model, orders [][]int) []model.Route {
	routes := make([]model.Route, 0, len(orders))
	for vi, order := range orders {
		if len(order) == 0 {
			continue
		}
		v := m.Vehicles[vi]
		route := model.Route{
			ID:           uuid.New().String(),
			TechnicianID: v.TechnicianID,
			Status:       model.StatusOptimized,
			Stops:        make([]model.RouteStop, 0, len(order)),
		}
		t := v.WorkStart
		prev := -1
		for seq, idx := range order {
			var travel, miles float64
			if prev < 0 {
				travel, miles = m.TravelFromStart(idx)
			} else {
				travel, miles = m.Travel(prev, idx)
			}
			nd := m.Nodes[idx]
			arrival := t + travel
			if arrival < nd.WindowStart {
				arrival = nd.WindowStart
			}
			feasible := arrival >= nd.WindowStart && arrival <= nd.WindowEnd
			departure := arrival + nd.ServiceMin
			if departure > v.WorkEnd {
				feasible = false
			}
			route.Stops = append(route.Stops, model.RouteStop{
				StopID:             nd.StopID,
				Sequence:           seq,
				ArrivalMin:         arrival,
				DepartureMin:       departure,
				TravelTimeFromPrev: travel,
				TravelDistFromPrev: miles,
				Feasible:           feasible,
			})
			route.TotalDistance += miles
			t = departure
			prev = idx
		}
		route.TotalDurationMin = t - v.WorkStart
		routes = append(routes, route)
	}
	return routes
}

// UnassignedStops maps solver drop records back to stop identifiers.
func UnassignedStops(m *constraint.Model, dropped []solver.Unassigned) []model.UnassignedStop {
	out := make([]model.UnassignedStop, 0, len(dropped))
	for _, d := range dropped {
		out = append(out, model.UnassignedStop{StopID: m.Nodes[d.Node].StopID, Reason: d.Reason})
	}
	return out
}
