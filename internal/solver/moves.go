package solver

import (
	"math"
	"math/rand"
	"sort"

	"routeflow/internal/constraint"
)

// assignedNodes lists currently routed nodes in vehicle-then-position order,
// so selection depends only on the rng stream, not map iteration.
func assignedNodes(s *solution) []int {
	out := []int{}
	for _, order := range s.orders {
		out = append(out, order...)
	}
	return out
}

// removeRandom drops k random routed nodes.
func removeRandom(s *solution, k int, rng *rand.Rand) []int {
	all := assignedNodes(s)
	removed := []int{}
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	detach(s, removed)
	return removed
}

// removeShaw drops a seed node plus its most related neighbours: close in
// geography (travel time) and with overlapping windows.
func removeShaw(m *constraint.Model, s *solution, k int, rng *rand.Rand) []int {
	all := assignedNodes(s)
	if len(all) == 0 {
		return nil
	}
	seed := all[rng.Intn(len(all))]
	sn := m.Nodes[seed]

	type scored struct {
		idx   int
		score float64
	}
	rel := make([]scored, 0, len(all))
	for _, idx := range all {
		if idx == seed {
			continue
		}
		n := m.Nodes[idx]
		travel, _ := m.Travel(seed, idx)
		overlap := windowOverlap(sn.WindowStart, sn.WindowEnd, n.WindowStart, n.WindowEnd)
		rel = append(rel, scored{idx: idx, score: travel - overlap})
	}
	sort.Slice(rel, func(a, b int) bool {
		if rel[a].score != rel[b].score {
			return rel[a].score < rel[b].score
		}
		return m.Nodes[rel[a].idx].StopID < m.Nodes[rel[b].idx].StopID
	})

	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].idx)
	}
	detach(s, removed)
	return removed
}

func windowOverlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := math.Max(aStart, bStart)
	end := math.Min(aEnd, bEnd)
	if end < start {
		return 0
	}
	return end - start
}

func detach(s *solution, removed []int) {
	rm := make(map[int]bool, len(removed))
	for _, idx := range removed {
		rm[idx] = true
	}
	for vi, order := range s.orders {
		kept := order[:0]
		for _, idx := range order {
			if !rm[idx] {
				kept = append(kept, idx)
			}
		}
		s.orders[vi] = kept
	}
}

// insertGreedy reinserts nodes by globally cheapest feasible placement.
// Nodes with no feasible placement land in the unassigned pool.
func insertGreedy(m *constraint.Model, s *solution, pool []int) {
	for len(pool) > 0 {
		bestNi, bestVi, bestPos := -1, -1, -1
		bestDelta := math.MaxFloat64
		for ni, idx := range pool {
			vi, pos, ok := bestInsertion(m, s, idx)
			if !ok {
				continue
			}
			d := insertDelta(m, s.orders[vi], idx, pos)
			if d < bestDelta {
				bestDelta = d
				bestNi, bestVi, bestPos = ni, vi, pos
			}
		}
		if bestNi < 0 {
			s.unassigned = append(s.unassigned, pool...)
			return
		}
		s.orders[bestVi] = insertAt(s.orders[bestVi], pool[bestNi], bestPos)
		pool = append(pool[:bestNi], pool[bestNi+1:]...)
	}
}

// insertRegret2 reinserts the node whose best placement is most at risk: the
// one with the largest gap between its best and second-best option.
func insertRegret2(m *constraint.Model, s *solution, pool []int) {
	for len(pool) > 0 {
		bestNi, bestVi, bestPos := -1, -1, -1
		bestRegret := -1.0
		bestFirst := math.MaxFloat64
		for ni, idx := range pool {
			first, second := math.MaxFloat64, math.MaxFloat64
			fvi, fpos := -1, -1
			for vi := range s.orders {
				order := s.orders[vi]
				for pos := 0; pos <= len(order); pos++ {
					if !feasibleInsertAt(m, order, m.Vehicles[vi], idx, pos) {
						continue
					}
					d := insertDelta(m, order, idx, pos)
					if d < first {
						second = first
						first = d
						fvi, fpos = vi, pos
					} else if d < second {
						second = d
					}
				}
			}
			if fvi < 0 {
				continue
			}
			regret := second - first
			if second == math.MaxFloat64 {
				regret = m.UnassignedPenalty // only one slot: place it now
			}
			if regret > bestRegret || (regret == bestRegret && first < bestFirst) {
				bestRegret = regret
				bestFirst = first
				bestNi, bestVi, bestPos = ni, fvi, fpos
			}
		}
		if bestNi < 0 {
			s.unassigned = append(s.unassigned, pool...)
			return
		}
		s.orders[bestVi] = insertAt(s.orders[bestVi], pool[bestNi], bestPos)
		pool = append(pool[:bestNi], pool[bestNi+1:]...)
	}
}

// twoOpt reverses intra-route segments while the schedule stays feasible and
// total travel drops.
func twoOpt(m *constraint.Model, s *solution) {
	for vi, order := range s.orders {
		n := len(order)
		if n < 4 {
			continue
		}
		improved := true
		for improved {
			improved = false
			base := routeTravel(m, order)
			for i := 1; i < n-2; i++ {
				for k := i + 1; k < n-1; k++ {
					cand := append([]int(nil), order...)
					for a, b := i, k; a < b; a, b = a+1, b-1 {
						cand[a], cand[b] = cand[b], cand[a]
					}
					if _, ok := schedule(m, cand, m.Vehicles[vi]); !ok {
						continue
					}
					if c := routeTravel(m, cand); c+1e-9 < base {
						order = cand
						base = c
						improved = true
					}
				}
			}
		}
		s.orders[vi] = order
	}
}

// orOptRelocate moves single nodes to a better position in the same route.
func orOptRelocate(m *constraint.Model, s *solution) {
	for vi, order := range s.orders {
		if len(order) < 3 {
			continue
		}
		improved := true
		for improved {
			improved = false
			base := routeTravel(m, order)
			for i := 0; i < len(order); i++ {
				for j := 0; j <= len(order); j++ {
					if j == i || j == i+1 {
						continue
					}
					cand := append([]int(nil), order...)
					node := cand[i]
					cand = removeAt(cand, i)
					p := j
					if p > i {
						p--
					}
					cand = insertAt(cand, node, p)
					if _, ok := schedule(m, cand, m.Vehicles[vi]); !ok {
						continue
					}
					if c := routeTravel(m, cand); c+1e-9 < base {
						order = cand
						base = c
						improved = true
					}
				}
			}
		}
		s.orders[vi] = order
	}
}

// crossExchange swaps one node between two routes when both stay feasible
// and combined travel drops.
func crossExchange(m *constraint.Model, s *solution) {
	nv := len(s.orders)
	if nv < 2 {
		return
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < nv; a++ {
			for b := a + 1; b < nv; b++ {
				for i := 0; i < len(s.orders[a]); i++ {
					for j := 0; j < len(s.orders[b]); j++ {
						ca := append([]int(nil), s.orders[a]...)
						cb := append([]int(nil), s.orders[b]...)
						ca[i], cb[j] = cb[j], ca[i]
						if _, ok := schedule(m, ca, m.Vehicles[a]); !ok {
							continue
						}
						if _, ok := schedule(m, cb, m.Vehicles[b]); !ok {
							continue
						}
						before := routeTravel(m, s.orders[a]) + routeTravel(m, s.orders[b])
						after := routeTravel(m, ca) + routeTravel(m, cb)
						if after+1e-9 < before {
							s.orders[a], s.orders[b] = ca, cb
							improved = true
						}
					}
				}
			}
		}
	}
}

// twoOptStar exchanges short segments (length 1..2) between two routes.
func twoOptStar(m *constraint.Model, s *solution) {
	nv := len(s.orders)
	if nv < 2 {
		return
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < nv; a++ {
			for b := a + 1; b < nv; b++ {
				pa, pb := s.orders[a], s.orders[b]
				for i := 0; i < len(pa); i++ {
					for j := 0; j < len(pb); j++ {
						for la := 1; la <= 2 && i+la <= len(pa); la++ {
							for lb := 1; lb <= 2 && j+lb <= len(pb); lb++ {
								segA := append([]int(nil), pa[i:i+la]...)
								segB := append([]int(nil), pb[j:j+lb]...)
								ca := append([]int(nil), pa[:i]...)
								ca = append(ca, segB...)
								ca = append(ca, pa[i+la:]...)
								cb := append([]int(nil), pb[:j]...)
								cb = append(cb, segA...)
								cb = append(cb, pb[j+lb:]...)
								if _, ok := schedule(m, ca, m.Vehicles[a]); !ok {
									continue
								}
								if _, ok := schedule(m, cb, m.Vehicles[b]); !ok {
									continue
								}
								before := routeTravel(m, pa) + routeTravel(m, pb)
								after := routeTravel(m, ca) + routeTravel(m, cb)
								if after+1e-9 < before {
									s.orders[a], s.orders[b] = ca, cb
									pa, pb = ca, cb
									improved = true
								}
							}
						}
					}
				}
			}
		}
	}
}
