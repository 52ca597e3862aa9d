package solver

import (
	"routeflow/internal/constraint"
)

// scheduleStats aggregates one simulated pass over a route.
type scheduleStats struct {
	travelMin float64
	miles     float64
	endMin    float64
}

// schedule propagates the cumulative-time dimension along one vehicle's order.
// The vehicle departs its start point at work start; arrival at a node waits
// for the window to open. Infeasible means a window close is missed, the work
// window is overrun, or the stop count exceeds capacity.
func schedule(m *constraint.Model, order []int, v constraint.Vehicle) (scheduleStats, bool) {
	var st scheduleStats
	if v.MaxStops > 0 && len(order) > v.MaxStops {
		return st, false
	}
	t := v.WorkStart
	prev := -1
	for _, idx := range order {
		var travel, miles float64
		if prev < 0 {
			travel, miles = m.TravelFromStart(idx)
		} else {
			travel, miles = m.Travel(prev, idx)
		}
		nd := m.Nodes[idx]
		arrival := t + travel
		if arrival < nd.WindowStart {
			arrival = nd.WindowStart // wait for the window to open
		}
		if arrival > nd.WindowEnd {
			return st, false
		}
		t = arrival + nd.ServiceMin
		if t > v.WorkEnd {
			return st, false
		}
		st.travelMin += travel
		st.miles += miles
		prev = idx
	}
	st.endMin = t
	return st, true
}

// feasibleInsertAt reports whether node idx can be inserted at pos without
// breaking any hard constraint, by full schedule propagation.
func feasibleInsertAt(m *constraint.Model, order []int, v constraint.Vehicle, idx, pos int) bool {
	if pos < 0 || pos > len(order) {
		return false
	}
	if v.MaxStops > 0 && len(order)+1 > v.MaxStops {
		return false
	}
	tmp := make([]int, 0, len(order)+1)
	tmp = append(tmp, order[:pos]...)
	tmp = append(tmp, idx)
	tmp = append(tmp, order[pos:]...)
	_, ok := schedule(m, tmp, v)
	return ok
}

// insertDelta approximates the marginal travel cost of inserting node idx at
// pos: added legs minus the removed leg.
func insertDelta(m *constraint.Model, order []int, idx, pos int) float64 {
	var before, after, removed float64
	if pos == 0 {
		before, _ = m.TravelFromStart(idx)
		if len(order) > 0 {
			after, _ = m.Travel(idx, order[0])
			removed, _ = m.TravelFromStart(order[0])
		}
	} else {
		before, _ = m.Travel(order[pos-1], idx)
		if pos < len(order) {
			after, _ = m.Travel(idx, order[pos])
			removed, _ = m.Travel(order[pos-1], order[pos])
		}
	}
	return before + after - removed
}

// cost is the objective: total travel minutes plus, for every unassigned
// node, the drop penalty and the forfeited priority credit. Minimizing this
// is equivalent to the travel + penalty - assigned-bonus form, shifted by a
// constant.
func cost(m *constraint.Model, s *solution) float64 {
	total := 0.0
	for vi, order := range s.orders {
		st, ok := schedule(m, order, m.Vehicles[vi])
		if !ok {
			// an infeasible order must never win acceptance
			return m.UnassignedPenalty * float64(len(m.Nodes)+1)
		}
		total += st.travelMin
	}
	for _, idx := range s.unassigned {
		total += m.UnassignedPenalty + m.Bonus(idx)
	}
	return total
}

// routeTravel sums travel minutes of one order, used by distance-only moves.
func routeTravel(m *constraint.Model, order []int) float64 {
	total := 0.0
	prev := -1
	for _, idx := range order {
		var travel float64
		if prev < 0 {
			travel, _ = m.TravelFromStart(idx)
		} else {
			travel, _ = m.Travel(prev, idx)
		}
		total += travel
		prev = idx
	}
	return total
}
