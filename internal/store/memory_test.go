package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"routeflow/internal/model"
)

func samplePlan(id, date string) model.Plan {
	return model.Plan{
		ID:       id,
		PlanDate: date,
		Routes: []model.Route{
			{ID: "r1", TechnicianID: "t1", Status: model.StatusOptimized},
		},
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestMemoryPlans(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if _, err := s.GetPlan(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SavePlan(ctx, samplePlan("p1", "2026-08-26")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SavePlan(ctx, samplePlan("p2", "2026-08-27")); err != nil {
		t.Fatalf("save: %v", err)
	}

	p, err := s.GetPlan(ctx, "p1")
	if err != nil || p.ID != "p1" {
		t.Fatalf("get: %v %+v", err, p)
	}

	all, err := s.ListPlans(ctx, "", 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %v, n=%d", err, len(all))
	}
	byDate, err := s.ListPlans(ctx, "2026-08-27", 0)
	if err != nil || len(byDate) != 1 || byDate[0].ID != "p2" {
		t.Fatalf("list filtered: %v %+v", err, byDate)
	}
	limited, _ := s.ListPlans(ctx, "", 1)
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}

func TestMemoryRouteStatusTransitions(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.SavePlan(ctx, samplePlan("p1", "2026-08-26"))

	r, err := s.UpdateRouteStatus(ctx, "p1", "r1", model.StatusDispatched)
	if err != nil || r.Status != model.StatusDispatched {
		t.Fatalf("dispatch: %v %+v", err, r)
	}
	if _, err := s.UpdateRouteStatus(ctx, "p1", "r1", model.StatusOptimized); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.UpdateRouteStatus(ctx, "p1", "nope", model.StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for route, got %v", err)
	}
	if _, err := s.UpdateRouteStatus(ctx, "nope", "r1", model.StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for plan, got %v", err)
	}

	// the updated status persists
	p, _ := s.GetPlan(ctx, "p1")
	if p.Routes[0].Status != model.StatusDispatched {
		t.Fatalf("status not persisted: %s", p.Routes[0].Status)
	}
}

func TestMemoryPlanCopiesDoNotAlias(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.SavePlan(ctx, samplePlan("p1", "2026-08-26"))

	before, _ := s.GetPlan(ctx, "p1")
	if _, err := s.UpdateRouteStatus(ctx, "p1", "r1", model.StatusDispatched); err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.Routes[0].Status != model.StatusOptimized {
		t.Fatalf("earlier copy mutated to %s", before.Routes[0].Status)
	}

	// readers marshalling a fetched plan must never observe a concurrent
	// status write (run with -race)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			p, _ := s.GetPlan(ctx, "p1")
			if _, err := json.Marshal(p); err != nil {
				t.Errorf("marshal: %v", err)
				return
			}
		}
	}()
	for _, st := range []model.RouteStatus{model.StatusInProgress, model.StatusCompleted} {
		if _, err := s.UpdateRouteStatus(ctx, "p1", "r1", st); err != nil {
			t.Fatalf("update %s: %v", st, err)
		}
	}
	<-done
}

func TestMemorySubscriptions(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	created, err := s.CreateSubscription(ctx, Subscription{URL: "https://example.com/hook", Events: []string{"plan.optimized"}})
	if err != nil || created.ID == "" {
		t.Fatalf("create: %v %+v", err, created)
	}
	wild, _ := s.CreateSubscription(ctx, Subscription{URL: "https://example.com/all", Events: []string{"*"}})

	subs, _ := s.ListSubscriptions(ctx)
	if len(subs) != 2 {
		t.Fatalf("list: %d", len(subs))
	}

	matched, _ := s.SubscriptionsForEvent(ctx, "plan.optimized")
	if len(matched) != 2 {
		t.Fatalf("wildcard should match too: %d", len(matched))
	}
	matched, _ = s.SubscriptionsForEvent(ctx, "route.status_changed")
	if len(matched) != 1 || matched[0].ID != wild.ID {
		t.Fatalf("only wildcard should match: %+v", matched)
	}

	if err := s.DeleteSubscription(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteSubscription(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	id, err := s.EnqueueWebhook(ctx, "sub1", "plan.optimized", "https://example.com/hook", "sec", []byte(`{}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}

	due, _ := s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %+v", due)
	}

	// failed attempt reschedules into the future
	next := time.Now().Add(time.Hour)
	if err := s.MarkWebhookDelivery(ctx, id, false, &next, "boom"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, _ = s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("rescheduled delivery must not be due: %+v", due)
	}

	// success removes it from the queue for good
	if err := s.MarkWebhookDelivery(ctx, id, true, nil, ""); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	id2, _ := s.EnqueueWebhook(ctx, "sub1", "plan.optimized", "https://example.com/hook", "sec", []byte(`{}`))
	if err := s.FailWebhookDelivery(ctx, id2, "gave up"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	due, _ = s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("terminal deliveries must not be due: %+v", due)
	}
}
