package solver

import (
	"math"
	"sort"

	"routeflow/internal/constraint"
	"routeflow/internal/model"
)

// solution is the solver's internal state: per-vehicle node orders plus the
// unassigned pool. Node values are matrix indices.
type solution struct {
	orders     [][]int
	unassigned []int
	cost       float64
}

func (s *solution) clone() *solution {
	out := &solution{
		orders:     make([][]int, len(s.orders)),
		unassigned: append([]int(nil), s.unassigned...),
		cost:       s.cost,
	}
	for i, o := range s.orders {
		out.orders[i] = append([]int(nil), o...)
	}
	return out
}

func (s *solution) assignedCount() int {
	n := 0
	for _, o := range s.orders {
		n += len(o)
	}
	return n
}

// construct builds the initial solution by cheapest feasible insertion.
// Stops are considered in (priority, id) order so urgent stops claim their
// positions first; the bias never places a stop outside its hard window.
func construct(m *constraint.Model) *solution {
	s := &solution{orders: make([][]int, len(m.Vehicles))}
	for i := range s.orders {
		s.orders[i] = []int{}
	}

	seq := make([]int, len(m.Nodes))
	for i := range seq {
		seq[i] = i
	}
	sort.SliceStable(seq, func(a, b int) bool {
		na, nb := m.Nodes[seq[a]], m.Nodes[seq[b]]
		if na.Priority != nb.Priority {
			return na.Priority < nb.Priority
		}
		return na.StopID < nb.StopID
	})

	for _, idx := range seq {
		vi, pos, ok := bestInsertion(m, s, idx)
		if !ok {
			s.unassigned = append(s.unassigned, idx)
			continue
		}
		s.orders[vi] = insertAt(s.orders[vi], idx, pos)
	}
	s.cost = cost(m, s)
	return s
}

// bestInsertion scans every vehicle and position for the least marginal-cost
// feasible placement. Ties resolve to the lowest vehicle then position index,
// keeping runs reproducible.
func bestInsertion(m *constraint.Model, s *solution, idx int) (vi, pos int, ok bool) {
	bestVi, bestPos := -1, -1
	bestDelta := math.MaxFloat64
	for v := range s.orders {
		order := s.orders[v]
		for p := 0; p <= len(order); p++ {
			if !feasibleInsertAt(m, order, m.Vehicles[v], idx, p) {
				continue
			}
			d := insertDelta(m, order, idx, p)
			if d < bestDelta {
				bestDelta = d
				bestVi, bestPos = v, p
			}
		}
	}
	if bestVi < 0 {
		return 0, 0, false
	}
	return bestVi, bestPos, true
}

func insertAt(order []int, idx, pos int) []int {
	order = append(order, 0)
	copy(order[pos+1:], order[pos:])
	order[pos] = idx
	return order
}

func removeAt(order []int, pos int) []int {
	return append(order[:pos], order[pos+1:]...)
}

// classifyUnassigned attaches a reason code to every node left unassigned in
// the final solution.
func classifyUnassigned(m *constraint.Model, s *solution) []Unassigned {
	if len(s.unassigned) == 0 {
		return nil
	}
	out := make([]Unassigned, 0, len(s.unassigned))
	for _, idx := range s.unassigned {
		out = append(out, Unassigned{Node: idx, Reason: unassignedReason(m, idx)})
	}
	sort.Slice(out, func(a, b int) bool {
		return m.Nodes[out[a].Node].StopID < m.Nodes[out[b].Node].StopID
	})
	return out
}

// unassignedReason decides the reason for a single dropped node. A node that
// cannot be served even alone on an empty schedule has no feasible window;
// one that could be served alone was crowded out by capacity.
func unassignedReason(m *constraint.Model, idx int) model.UnassignedReason {
	if len(m.Vehicles) == 0 {
		return model.ReasonNoTechnicianAvailable
	}
	for _, v := range m.Vehicles {
		if feasibleInsertAt(m, nil, v, idx, 0) {
			return model.ReasonCapacityExceeded
		}
	}
	return model.ReasonNoFeasibleWindow
}
