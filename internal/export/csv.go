// Package export renders optimized routes for spreadsheet consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"routeflow/internal/model"
)

var routeHeader = []string{
	"technician_id", "sequence", "stop_id", "arrival", "departure",
	"travel_time_min", "travel_distance_mi", "feasible",
}

// WriteRouteCSV writes one route as CSV with HH:MM times of day.
func WriteRouteCSV(w io.Writer, route model.Route) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(routeHeader); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	for _, rs := range route.Stops {
		rec := []string{
			route.TechnicianID,
			strconv.Itoa(rs.Sequence),
			rs.StopID,
			Clock(rs.ArrivalMin),
			Clock(rs.DepartureMin),
			strconv.FormatFloat(rs.TravelTimeFromPrev, 'f', 1, 64),
			strconv.FormatFloat(rs.TravelDistFromPrev, 'f', 2, 64),
			strconv.FormatBool(rs.Feasible),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePlanCSV writes every route in the plan, one block per technician.
func WritePlanCSV(w io.Writer, plan model.Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(routeHeader); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	for _, route := range plan.Routes {
		for _, rs := range route.Stops {
			rec := []string{
				route.TechnicianID,
				strconv.Itoa(rs.Sequence),
				rs.StopID,
				Clock(rs.ArrivalMin),
				Clock(rs.DepartureMin),
				strconv.FormatFloat(rs.TravelTimeFromPrev, 'f', 1, 64),
				strconv.FormatFloat(rs.TravelDistFromPrev, 'f', 2, 64),
				strconv.FormatBool(rs.Feasible),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("export csv: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Clock formats minutes-of-day as HH:MM.
func Clock(min float64) string {
	m := int(min + 0.5)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
