package solver

import (
	"context"
	"reflect"
	"testing"
	"time"

	"routeflow/internal/constraint"
	"routeflow/internal/matrix"
	"routeflow/internal/model"
)

func buildModel(t *testing.T, stops []model.Stop, techs []model.Technician) *constraint.Model {
	t.Helper()
	prov := matrix.NewHaversineProvider(matrix.DefaultSpeedMph)
	m, err := prov.Compute(context.Background(), stops, nil)
	if err != nil {
		t.Fatalf("compute matrix: %v", err)
	}
	return constraint.Build(stops, techs, m, model.PlanConfig{})
}

func stop(id string, lat, lng, winStart, winEnd float64) model.Stop {
	return model.Stop{
		ID:                 id,
		Location:           model.GeoPoint{Lat: lat, Lng: lng},
		ServiceDurationMin: 30,
		WindowStartMin:     winStart,
		WindowEndMin:       winEnd,
	}
}

func tech(id string, start, end float64, maxStops int) model.Technician {
	return model.Technician{ID: id, WorkStartMin: start, WorkEndMin: end, MaxStopsPerDay: maxStops}
}

func quickOpts() Options {
	return Options{Seed: 42, TimeBudget: 2 * time.Second, MaxIterations: 200}
}

func TestSolveZeroStops(t *testing.T) {
	m := buildModel(t, nil, []model.Technician{tech("t1", 480, 1020, 0)})
	res := Solve(context.Background(), m, quickOpts())
	for _, o := range res.Orders {
		if len(o) != 0 {
			t.Fatalf("expected empty orders, got %v", res.Orders)
		}
	}
	if len(res.Unassigned) != 0 {
		t.Fatalf("expected no unassigned, got %v", res.Unassigned)
	}
}

func TestSolveZeroTechnicians(t *testing.T) {
	stops := []model.Stop{
		stop("s1", 40.00, -105.00, 480, 1020),
		stop("s2", 40.01, -105.00, 480, 1020),
	}
	m := buildModel(t, stops, nil)
	res := Solve(context.Background(), m, quickOpts())
	if len(res.Unassigned) != 2 {
		t.Fatalf("expected 2 unassigned, got %d", len(res.Unassigned))
	}
	for _, u := range res.Unassigned {
		if u.Reason != model.ReasonNoTechnicianAvailable {
			t.Fatalf("expected no_technician_available, got %s", u.Reason)
		}
	}
}

func TestSolveDisjointWindowsOrdered(t *testing.T) {
	stops := []model.Stop{
		stop("s1", 40.00, -105.00, 540, 600),
		stop("s2", 40.01, -105.00, 615, 660),
		stop("s3", 40.02, -105.00, 675, 720),
	}
	m := buildModel(t, stops, []model.Technician{tech("t1", 480, 1020, 0)})
	res := Solve(context.Background(), m, quickOpts())
	if len(res.Unassigned) != 0 {
		t.Fatalf("expected all assigned, got unassigned %v", res.Unassigned)
	}
	order := res.Orders[0]
	if len(order) != 3 {
		t.Fatalf("expected 3 stops on route, got %d", len(order))
	}
	want := []string{"s1", "s2", "s3"}
	for i, idx := range order {
		if m.Nodes[idx].StopID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, m.Nodes[idx].StopID, want[i])
		}
	}
}

func TestSolveInfeasibleWindow(t *testing.T) {
	stops := []model.Stop{
		stop("s1", 40.00, -105.00, 540, 600),
		stop("early", 40.01, -105.00, 100, 120), // closes before the shift starts
	}
	m := buildModel(t, stops, []model.Technician{tech("t1", 480, 1020, 0)})
	res := Solve(context.Background(), m, quickOpts())
	if len(res.Unassigned) != 1 {
		t.Fatalf("expected 1 unassigned, got %d", len(res.Unassigned))
	}
	u := res.Unassigned[0]
	if m.Nodes[u.Node].StopID != "early" {
		t.Fatalf("wrong stop dropped: %s", m.Nodes[u.Node].StopID)
	}
	if u.Reason != model.ReasonNoFeasibleWindow {
		t.Fatalf("expected no_feasible_window, got %s", u.Reason)
	}
}

func TestSolveCapacityExceeded(t *testing.T) {
	var stops []model.Stop
	ids := []string{"a", "b", "c", "d", "e"}
	for i, id := range ids {
		stops = append(stops, stop(id, 40.0+float64(i)*0.01, -105.00, 480, 1020))
	}
	m := buildModel(t, stops, []model.Technician{tech("t1", 480, 1020, 3)})
	res := Solve(context.Background(), m, quickOpts())
	if got := len(res.Orders[0]); got != 3 {
		t.Fatalf("expected 3 assigned, got %d", got)
	}
	if len(res.Unassigned) != 2 {
		t.Fatalf("expected 2 unassigned, got %d", len(res.Unassigned))
	}
	for _, u := range res.Unassigned {
		if u.Reason != model.ReasonCapacityExceeded {
			t.Fatalf("expected capacity_exceeded, got %s", u.Reason)
		}
	}
}

func TestSolveMixedUnassignedReasons(t *testing.T) {
	var stops []model.Stop
	ids := []string{"a", "b", "c", "d", "e"}
	for i, id := range ids {
		stops = append(stops, stop(id, 40.0+float64(i)*0.01, -105.00, 480, 1020))
	}
	// closes before the shift starts, so no vehicle can ever reach it
	stops = append(stops, stop("early", 40.05, -105.00, 60, 90))
	m := buildModel(t, stops, []model.Technician{tech("t1", 480, 1020, 3)})
	res := Solve(context.Background(), m, quickOpts())
	if len(res.Unassigned) != 3 {
		t.Fatalf("expected 3 unassigned, got %d", len(res.Unassigned))
	}
	for _, u := range res.Unassigned {
		id := m.Nodes[u.Node].StopID
		want := model.ReasonCapacityExceeded
		if id == "early" {
			want = model.ReasonNoFeasibleWindow
		}
		if u.Reason != want {
			t.Fatalf("stop %s: got %s, want %s", id, u.Reason, want)
		}
	}
}

func TestSolveEachStopAtMostOnce(t *testing.T) {
	var stops []model.Stop
	for i := 0; i < 12; i++ {
		stops = append(stops, stop(string(rune('a'+i)), 40.0+float64(i%4)*0.02, -105.0+float64(i/4)*0.02, 480, 1020))
	}
	techs := []model.Technician{tech("t1", 480, 1020, 0), tech("t2", 480, 1020, 0)}
	m := buildModel(t, stops, techs)
	res := Solve(context.Background(), m, quickOpts())

	seen := map[int]bool{}
	assigned := 0
	for _, order := range res.Orders {
		for _, idx := range order {
			if seen[idx] {
				t.Fatalf("node %d assigned twice", idx)
			}
			seen[idx] = true
			assigned++
		}
	}
	if assigned+len(res.Unassigned) != len(stops) {
		t.Fatalf("assigned %d + unassigned %d != %d stops", assigned, len(res.Unassigned), len(stops))
	}
}

func TestSolveDeterministic(t *testing.T) {
	var stops []model.Stop
	for i := 0; i < 10; i++ {
		ws := 480.0 + float64(i%3)*60
		stops = append(stops, stop(string(rune('a'+i)), 40.0+float64(i)*0.015, -105.0-float64(i%5)*0.01, ws, ws+240))
	}
	techs := []model.Technician{tech("t1", 480, 1020, 0), tech("t2", 540, 1020, 4)}

	run := func() Result {
		m := buildModel(t, stops, techs)
		return Solve(context.Background(), m, quickOpts())
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a.Orders, b.Orders) {
		t.Fatalf("orders differ between identical runs:\n%v\n%v", a.Orders, b.Orders)
	}
	if !reflect.DeepEqual(a.Unassigned, b.Unassigned) {
		t.Fatalf("unassigned differ between identical runs:\n%v\n%v", a.Unassigned, b.Unassigned)
	}
	if a.Diagnostics.BestCost != b.Diagnostics.BestCost {
		t.Fatalf("cost differs: %v vs %v", a.Diagnostics.BestCost, b.Diagnostics.BestCost)
	}
}

func TestSolveCancellation(t *testing.T) {
	var stops []model.Stop
	for i := 0; i < 8; i++ {
		stops = append(stops, stop(string(rune('a'+i)), 40.0+float64(i)*0.01, -105.00, 480, 1020))
	}
	m := buildModel(t, stops, []model.Technician{tech("t1", 480, 1020, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Solve(ctx, m, Options{Seed: 1, TimeBudget: time.Minute})
	// construction still runs; the improvement loop exits immediately
	if res.Diagnostics.Iterations != 0 {
		t.Fatalf("expected 0 iterations after cancel, got %d", res.Diagnostics.Iterations)
	}
	if got := len(res.Orders[0]); got != 8 {
		t.Fatalf("expected constructed solution, got %d assigned", got)
	}
}

func TestSolveMaxIterations(t *testing.T) {
	stops := []model.Stop{
		stop("s1", 40.00, -105.00, 480, 1020),
		stop("s2", 40.01, -105.00, 480, 1020),
	}
	m := buildModel(t, stops, []model.Technician{tech("t1", 480, 1020, 0)})
	res := Solve(context.Background(), m, Options{Seed: 7, TimeBudget: time.Minute, MaxIterations: 5})
	if res.Diagnostics.Iterations != 5 {
		t.Fatalf("expected exactly 5 iterations, got %d", res.Diagnostics.Iterations)
	}
	if res.Diagnostics.TimedOut {
		t.Fatal("iteration cap must not report a timeout")
	}
}
