package model

// Core domain types shared by the optimization pipeline and the API layer.
// Times of day are minutes from midnight; distances are miles.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Stop is one service visit to be scheduled. Immutable during a run.
type Stop struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name,omitempty"`
	Location           GeoPoint       `json:"location"`
	ServiceDurationMin float64        `json:"serviceDurationMin"`
	WindowStartMin     float64        `json:"windowStartMin"`
	WindowEndMin       float64        `json:"windowEndMin"`
	Priority           int            `json:"priority,omitempty"` // lower = more urgent
	Metadata           map[string]any `json:"metadata,omitempty"` // opaque, passed through
}

// Technician is one vehicle-day. Skill eligibility is decided upstream;
// the pipeline treats the technician set it receives as already eligible.
type Technician struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	WorkStartMin   float64  `json:"workStartMin"`
	WorkEndMin     float64  `json:"workEndMin"`
	MaxStopsPerDay int      `json:"maxStopsPerDay"`
	Skills         []string `json:"skills,omitempty"`
}

// RouteStop is one scheduled visit within a route.
type RouteStop struct {
	StopID             string  `json:"stopId"`
	Sequence           int     `json:"sequence"`
	ArrivalMin         float64 `json:"arrival"`
	DepartureMin       float64 `json:"departure"`
	TravelTimeFromPrev float64 `json:"travelTimeFromPrev"`
	TravelDistFromPrev float64 `json:"travelDistanceFromPrev"`
	Feasible           bool    `json:"feasible"`
}

// Route is one technician's assignment for the plan day.
type Route struct {
	ID               string      `json:"id"`
	TechnicianID     string      `json:"technicianId"`
	Status           RouteStatus `json:"status"`
	Stops            []RouteStop `json:"orderedStops"`
	TotalDistance    float64     `json:"totalDistance"`
	TotalDurationMin float64     `json:"totalDuration"`
	Score            float64     `json:"score"`
}

// UnassignedReason explains why a stop could not be placed on any route.
type UnassignedReason string

const (
	ReasonNoFeasibleWindow      UnassignedReason = "no_feasible_window"
	ReasonCapacityExceeded      UnassignedReason = "capacity_exceeded"
	ReasonNoTechnicianAvailable UnassignedReason = "no_technician_available"
)

type UnassignedStop struct {
	StopID string           `json:"stopId"`
	Reason UnassignedReason `json:"reasonCode"`
}

// DistanceMetric selects the travel cost backend.
type DistanceMetric string

const (
	MetricEuclidean DistanceMetric = "euclidean"
	MetricPrecise   DistanceMetric = "precise"
)

// PlanConfig is the caller-supplied run configuration.
type PlanConfig struct {
	TimeBudgetSeconds float64        `json:"timeBudgetSeconds,omitempty"`
	DistanceMetric    DistanceMetric `json:"distanceMetric,omitempty"`
	RandomSeed        int64          `json:"randomSeed,omitempty"`
	MaxIterations     int            `json:"maxIterations,omitempty"`
	InitialTemp       float64        `json:"initTemp,omitempty"`
	Cooling           float64        `json:"cooling,omitempty"`
	UnassignedPenalty float64        `json:"unassignedPenalty,omitempty"`
	PriorityBonus     float64        `json:"priorityBonus,omitempty"`
}

// PlanRequest is the input contract for one optimization run.
type PlanRequest struct {
	PlanDate    string       `json:"planDate,omitempty"`
	Stops       []Stop       `json:"stops"`
	Technicians []Technician `json:"technicians"`
	Depot       *GeoPoint    `json:"depot,omitempty"`
	Config      PlanConfig   `json:"config,omitempty"`
}

// Diagnostics reports how the solver spent its budget. Informational only.
type Diagnostics struct {
	Iterations     int        `json:"iterations"`
	Improvements   int        `json:"improvements"`
	AcceptedWorse  int        `json:"acceptedWorse"`
	TimedOut       bool       `json:"timedOut"`
	MatrixDegraded bool       `json:"matrixDegraded,omitempty"`
	BestCost       float64    `json:"bestCost"`
	RemovalSelects [2]int     `json:"removalSelects"`
	InsertSelects  [2]int     `json:"insertSelects"`
	RemovalWeights [2]float64 `json:"removalWeights"`
	InsertWeights  [2]float64 `json:"insertWeights"`
	ElapsedMs      int64      `json:"elapsedMs"`
}

// Plan is the result of one optimization run: the output contract.
type Plan struct {
	ID            string           `json:"id"`
	PlanDate      string           `json:"planDate,omitempty"`
	Routes        []Route          `json:"routes"`
	Unassigned    []UnassignedStop `json:"unassigned"`
	TotalDistance float64          `json:"totalDistance"`
	TotalDuration float64          `json:"totalDuration"`
	Score         float64          `json:"score"`
	Diagnostics   Diagnostics      `json:"diagnostics"`
	CreatedAt     string           `json:"createdAt,omitempty"`
}
