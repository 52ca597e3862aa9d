package constraint

import (
	"routeflow/internal/matrix"
	"routeflow/internal/model"
)

// Default weights for the solver objective. Overridable per run.
const (
	DefaultUnassignedPenalty = 1e4 // large but finite: dropping is soft
	DefaultPriorityBonus     = 15  // minutes of credit per priority level
	maxPriorityLevel         = 5
)

// Node is one stop in solver coordinates.
type Node struct {
	StopID      string
	Priority    int
	WindowStart float64
	WindowEnd   float64
	ServiceMin  float64
}

// Vehicle is one technician-day with a cumulative-time dimension seeded at
// work start.
type Vehicle struct {
	TechnicianID string
	WorkStart    float64
	WorkEnd      float64
	MaxStops     int
}

// Model is the stateless constraint graph handed to the solver. Rebuilding it
// per run is cheap relative to search; nothing here survives a run.
type Model struct {
	Nodes    []Node
	Vehicles []Vehicle
	Matrix   *matrix.Matrix

	UnassignedPenalty float64
	PriorityBonus     float64
}

// Build assembles the constraint graph from validated input. Node order
// follows stop order, which matches matrix indices.
func Build(stops []model.Stop, techs []model.Technician, m *matrix.Matrix, cfg model.PlanConfig) *Model {
	nodes := make([]Node, len(stops))
	for i, s := range stops {
		nodes[i] = Node{
			StopID:      s.ID,
			Priority:    s.Priority,
			WindowStart: s.WindowStartMin,
			WindowEnd:   s.WindowEndMin,
			ServiceMin:  s.ServiceDurationMin,
		}
	}
	vehicles := make([]Vehicle, len(techs))
	for i, t := range techs {
		vehicles[i] = Vehicle{
			TechnicianID: t.ID,
			WorkStart:    t.WorkStartMin,
			WorkEnd:      t.WorkEndMin,
			MaxStops:     t.MaxStopsPerDay,
		}
	}
	penalty := cfg.UnassignedPenalty
	if penalty <= 0 {
		penalty = DefaultUnassignedPenalty
	}
	bonus := cfg.PriorityBonus
	if bonus <= 0 {
		bonus = DefaultPriorityBonus
	}
	return &Model{
		Nodes:             nodes,
		Vehicles:          vehicles,
		Matrix:            m,
		UnassignedPenalty: penalty,
		PriorityBonus:     bonus,
	}
}

// Travel returns minutes and miles from node i to node j (matrix indices).
func (m *Model) Travel(i, j int) (minutes, miles float64) {
	return m.Matrix.Minutes[i][j], m.Matrix.Miles[i][j]
}

// TravelFromStart returns the leg from the vehicle's start point to node j.
// Without a depot a vehicle starts at its first stop, so the leg is free.
func (m *Model) TravelFromStart(j int) (minutes, miles float64) {
	if m.Matrix.Depot < 0 {
		return 0, 0
	}
	return m.Matrix.Minutes[m.Matrix.Depot][j], m.Matrix.Miles[m.Matrix.Depot][j]
}

// Bonus is the objective credit for assigning a node. Lower priority ordinals
// (more urgent) earn a larger credit; the credit never overrides a hard
// window violation because infeasible placements are rejected outright.
func (m *Model) Bonus(i int) float64 {
	p := m.Nodes[i].Priority
	if p < 1 {
		p = 1
	}
	if p > maxPriorityLevel {
		p = maxPriorityLevel
	}
	return m.PriorityBonus * float64(maxPriorityLevel+1-p)
}
