package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"routeflow/internal/constraint"
	"routeflow/internal/export"
	"routeflow/internal/model"
	"routeflow/internal/store"
	"routeflow/internal/webhooks"
)

// OptimizeHandler handles POST /v1/plans/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	s.applyConfigDefaults(&req.Config)

	plan, err := s.Planner.Plan(r.Context(), req)
	if err != nil {
		var ve *constraint.ValidationError
		if errors.As(err, &ve) {
			writeProblem(w, http.StatusBadRequest, "Invalid input", ve.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SavePlan(r.Context(), plan); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
		return
	}

	s.Pub.Publish(r.Context(), webhooks.EventPlanOptimized, map[string]any{
		"planId":     plan.ID,
		"planDate":   plan.PlanDate,
		"routes":     len(plan.Routes),
		"unassigned": len(plan.Unassigned),
		"score":      plan.Score,
	})
	s.publishPlanEvent(plan.ID, Event{Type: webhooks.EventPlanOptimized, Data: map[string]any{
		"planId": plan.ID, "score": plan.Score, "routes": len(plan.Routes),
	}})

	writeJSON(w, http.StatusOK, plan)
}

// applyConfigDefaults fills unset run options from service config and caps the
// time budget so a single request cannot hold a worker indefinitely.
func (s *Server) applyConfigDefaults(c *model.PlanConfig) {
	sc := s.Cfg.Solver
	if c.TimeBudgetSeconds <= 0 {
		c.TimeBudgetSeconds = sc.TimeBudgetSeconds
	}
	if c.TimeBudgetSeconds > sc.MaxTimeBudgetSeconds {
		c.TimeBudgetSeconds = sc.MaxTimeBudgetSeconds
	}
	if c.InitialTemp == 0 {
		c.InitialTemp = sc.InitialTemp
	}
	if c.Cooling == 0 {
		c.Cooling = sc.Cooling
	}
	if c.UnassignedPenalty == 0 {
		c.UnassignedPenalty = sc.UnassignedPenalty
	}
	if c.PriorityBonus == 0 {
		c.PriorityBonus = sc.PriorityBonus
	}
	if c.DistanceMetric == "" {
		c.DistanceMetric = model.DistanceMetric(s.Cfg.Distance.Metric)
	}
}

// PlansHandler handles GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	date := r.URL.Query().Get("date")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	plans, err := s.Store.ListPlans(r.Context(), date, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": plans})
}

// PlanByIDHandler handles GET /v1/plans/{id}, GET .../export.csv,
// GET .../events (SSE), and PATCH .../routes/{routeId}.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		plan, err := s.Store.GetPlan(r.Context(), id)
		if err != nil {
			s.planError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
		return
	}

	switch parts[1] {
	case "export.csv":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.exportCSV(w, r, id)
	case "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.streamPlanEvents(w, r, id)
	case "routes":
		if len(parts) < 3 || parts[2] == "" {
			writeProblem(w, http.StatusNotFound, "Not Found", "missing route id", r.URL.Path)
			return
		}
		if len(parts) > 3 && parts[3] == "export.csv" {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.exportRouteCSV(w, r, id, parts[2])
			return
		}
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.patchRouteStatus(w, r, id, parts[2])
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, id string) {
	plan, err := s.Store.GetPlan(r.Context(), id)
	if err != nil {
		s.planError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=plan-%s.csv", id))
	if err := export.WritePlanCSV(w, plan); err != nil {
		s.Log.Error().Err(err).Str("plan_id", id).Msg("csv export failed mid-stream")
	}
}

func (s *Server) exportRouteCSV(w http.ResponseWriter, r *http.Request, planID, routeID string) {
	plan, err := s.Store.GetPlan(r.Context(), planID)
	if err != nil {
		s.planError(w, r, err)
		return
	}
	for _, route := range plan.Routes {
		if route.ID != routeID {
			continue
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=route-%s.csv", routeID))
		if err := export.WriteRouteCSV(w, route); err != nil {
			s.Log.Error().Err(err).Str("route_id", routeID).Msg("csv export failed mid-stream")
		}
		return
	}
	writeProblem(w, http.StatusNotFound, "Route not found", "", r.URL.Path)
}

func (s *Server) patchRouteStatus(w http.ResponseWriter, r *http.Request, planID, routeID string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	status, err := model.ParseStatus(body.Status)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid status", err.Error(), r.URL.Path)
		return
	}
	route, err := s.Store.UpdateRouteStatus(r.Context(), planID, routeID, status)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
		case errors.Is(err, store.ErrInvalidTransition):
			writeProblem(w, http.StatusConflict, "Invalid transition", err.Error(), r.URL.Path)
		default:
			writeProblem(w, http.StatusInternalServerError, "Update failed", err.Error(), r.URL.Path)
		}
		return
	}

	s.Pub.Publish(r.Context(), webhooks.EventRouteStatusChanged, map[string]any{
		"planId":       planID,
		"routeId":      routeID,
		"technicianId": route.TechnicianID,
		"status":       string(route.Status),
	})
	s.publishPlanEvent(planID, Event{Type: webhooks.EventRouteStatusChanged, Data: map[string]any{
		"planId": planID, "routeId": routeID, "status": string(route.Status),
	}})

	writeJSON(w, http.StatusOK, route)
}

func (s *Server) streamPlanEvents(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	if _, err := s.Store.GetPlan(r.Context(), id); err != nil {
		s.planError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	writeSSE(w, "heartbeat", map[string]any{"planId": id, "ts": time.Now().Format(time.RFC3339)})
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, evt.Type, evt.Data)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			writeSSE(w, "heartbeat", map[string]any{"planId": id, "ts": time.Now().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data map[string]any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func (s *Server) planError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Load plan failed", err.Error(), r.URL.Path)
}

// SubscriptionsHandler handles POST/GET /v1/webhooks/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var sub store.Subscription
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if sub.URL == "" || len(sub.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		created, err := s.Store.CreateSubscription(r.Context(), sub)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		subs, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": subs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/webhooks/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}
