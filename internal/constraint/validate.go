package constraint

import (
	"fmt"
	"math"

	"routeflow/internal/model"
)

// ValidationError rejects a run before the solver starts. It always names the
// offending record. All other conditions degrade gracefully and are reported
// in the structured result instead.
type ValidationError struct {
	Kind  string // "stop" or "technician"
	ID    string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s: %s", e.Kind, e.ID, e.Field, e.Msg)
}

func stopErr(id, field, msg string) error {
	return &ValidationError{Kind: "stop", ID: id, Field: field, Msg: msg}
}

func techErr(id, field, msg string) error {
	return &ValidationError{Kind: "technician", ID: id, Field: field, Msg: msg}
}

// ValidateInput checks the input contract: coordinates on the globe, positive
// service durations, ordered windows, distinct ids.
func ValidateInput(stops []model.Stop, techs []model.Technician) error {
	seen := make(map[string]bool, len(stops))
	for _, s := range stops {
		if s.ID == "" {
			return stopErr(s.ID, "id", "must be non-empty")
		}
		if seen[s.ID] {
			return stopErr(s.ID, "id", "duplicate stop id")
		}
		seen[s.ID] = true
		if !validCoord(s.Location.Lat, 90) || !validCoord(s.Location.Lng, 180) {
			return stopErr(s.ID, "location", fmt.Sprintf("malformed coordinates (%v,%v)", s.Location.Lat, s.Location.Lng))
		}
		if s.ServiceDurationMin <= 0 || math.IsNaN(s.ServiceDurationMin) {
			return stopErr(s.ID, "serviceDurationMin", "must be > 0")
		}
		if s.WindowStartMin > s.WindowEndMin {
			return stopErr(s.ID, "timeWindow", fmt.Sprintf("window start %.0f after end %.0f", s.WindowStartMin, s.WindowEndMin))
		}
		if s.WindowStartMin < 0 || s.WindowEndMin > 24*60 {
			return stopErr(s.ID, "timeWindow", "window outside minutes-of-day range")
		}
	}
	seenT := make(map[string]bool, len(techs))
	for _, t := range techs {
		if t.ID == "" {
			return techErr(t.ID, "id", "must be non-empty")
		}
		if seenT[t.ID] {
			return techErr(t.ID, "id", "duplicate technician id")
		}
		seenT[t.ID] = true
		if t.WorkStartMin > t.WorkEndMin {
			return techErr(t.ID, "workWindow", fmt.Sprintf("work start %.0f after end %.0f", t.WorkStartMin, t.WorkEndMin))
		}
		if t.MaxStopsPerDay < 0 {
			return techErr(t.ID, "maxStopsPerDay", "must be >= 0")
		}
	}
	return nil
}

func validCoord(v, bound float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -bound && v <= bound
}
