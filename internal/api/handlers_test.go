package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"routeflow/internal/config"
	"routeflow/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func optimizeBody() []byte {
	req := model.PlanRequest{
		PlanDate: "2026-08-26",
		Stops: []model.Stop{
			{ID: "s1", Location: model.GeoPoint{Lat: 40.00, Lng: -105.00}, ServiceDurationMin: 30, WindowStartMin: 540, WindowEndMin: 720},
			{ID: "s2", Location: model.GeoPoint{Lat: 40.02, Lng: -105.00}, ServiceDurationMin: 30, WindowStartMin: 540, WindowEndMin: 720},
		},
		Technicians: []model.Technician{
			{ID: "t1", WorkStartMin: 480, WorkEndMin: 1020},
		},
		Config: model.PlanConfig{TimeBudgetSeconds: 0.2, MaxIterations: 50, RandomSeed: 1},
	}
	b, _ := json.Marshal(req)
	return b
}

func runOptimize(t *testing.T, s *Server) model.Plan {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/optimize", bytes.NewReader(optimizeBody()))
	req.Header.Set("Content-Type", "application/json")
	s.OptimizeHandler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var plan model.Plan
	if err := json.Unmarshal(rr.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return plan
}

func TestHealthReadyVersion(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.VersionHandler(rr, httptest.NewRequest(http.MethodGet, "/version", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "version") {
		t.Fatalf("version: %d %s", rr.Code, rr.Body.String())
	}
}

func TestOptimizeAndGetPlan(t *testing.T) {
	s := newTestServer(t)
	plan := runOptimize(t, s)
	if plan.ID == "" || len(plan.Routes) != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if got := len(plan.Routes[0].Stops); got != 2 {
		t.Fatalf("expected both stops assigned, got %d", got)
	}

	rr := httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get plan: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.PlansHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans?date=2026-08-26", nil))
	if rr.Code != 200 {
		t.Fatalf("list plans: %d", rr.Code)
	}
	var list struct {
		Items []model.Plan `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("list decode: %v, n=%d", err, len(list.Items))
	}
}

func TestOptimizeRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"stops":[{"id":"s1","location":{"lat":999,"lng":0},"serviceDurationMin":30,"windowStartMin":540,"windowEndMin":720}],"technicians":[{"id":"t1","workStartMin":480,"workEndMin":1020}]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/optimize", bytes.NewReader(body))
	s.OptimizeHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rr.Code, rr.Body.String())
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != 400 {
		t.Fatalf("expected problem body: %v %+v", err, p)
	}
}

func TestOptimizeRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/plans/optimize", strings.NewReader("{not json")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPatchRouteStatus(t *testing.T) {
	s := newTestServer(t)
	plan := runOptimize(t, s)
	routeID := plan.Routes[0].ID
	url := "/v1/plans/" + plan.ID + "/routes/" + routeID

	patch := func(status string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		body := []byte(`{"status":"` + status + `"}`)
		s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPatch, url, bytes.NewReader(body)))
		return rr
	}

	if rr := patch("dispatched"); rr.Code != 200 {
		t.Fatalf("dispatch: %d %s", rr.Code, rr.Body.String())
	}
	// dispatched -> optimized is not a legal move
	if rr := patch("optimized"); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr := patch("warp"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	rr := httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodPatch, "/v1/plans/nope/routes/r1", bytes.NewReader([]byte(`{"status":"dispatched"}`))))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	plan := runOptimize(t, s)

	rr := httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+plan.ID+"/export.csv", nil))
	if rr.Code != 200 {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type: %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 { // header + 2 stops
		t.Fatalf("expected 3 csv lines, got %d: %q", len(lines), rr.Body.String())
	}
	if !strings.HasPrefix(lines[0], "technician_id,sequence,stop_id") {
		t.Fatalf("bad header: %s", lines[0])
	}

	// single-route export
	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet,
		"/v1/plans/"+plan.ID+"/routes/"+plan.Routes[0].ID+"/export.csv", nil))
	if rr.Code != 200 {
		t.Fatalf("route export: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet,
		"/v1/plans/"+plan.ID+"/routes/nope/export.csv", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing route export: %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	body := []byte(`{"url":"https://example.com/hook","events":["plan.optimized"]}`)
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/webhooks/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil || created.ID == "" {
		t.Fatalf("create decode: %v", err)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/webhooks/subscriptions", bytes.NewReader([]byte(`{"url":""}`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/webhooks/subscriptions", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), created.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/webhooks/subscriptions/"+created.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/webhooks/subscriptions/"+created.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: %d", rr.Code)
	}
}

func TestOptimizeEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	body := []byte(`{"url":"https://example.com/hook","events":["plan.optimized"]}`)
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/webhooks/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d", rr.Code)
	}

	runOptimize(t, s)

	due, err := s.Store.FetchDueWebhookDeliveries(httptest.NewRequest("GET", "/", nil).Context(), 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("expected 1 enqueued delivery: %v, n=%d", err, len(due))
	}
}

func TestBudgetCap(t *testing.T) {
	s := newTestServer(t)
	c := model.PlanConfig{TimeBudgetSeconds: 99999}
	s.applyConfigDefaults(&c)
	if c.TimeBudgetSeconds != s.Cfg.Solver.MaxTimeBudgetSeconds {
		t.Fatalf("budget not capped: %v", c.TimeBudgetSeconds)
	}
	c = model.PlanConfig{}
	s.applyConfigDefaults(&c)
	if c.TimeBudgetSeconds != s.Cfg.Solver.TimeBudgetSeconds {
		t.Fatalf("default budget not applied: %v", c.TimeBudgetSeconds)
	}
}
