package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeflow/internal/model"
)

// Memory is the default store for development and tests.
type Memory struct {
	mu         sync.RWMutex
	plans      map[string]model.Plan
	subs       map[string]Subscription
	deliveries map[string]*WebhookDelivery
}

func NewMemory() *Memory {
	return &Memory{
		plans:      make(map[string]model.Plan),
		subs:       make(map[string]Subscription),
		deliveries: make(map[string]*WebhookDelivery),
	}
}

// clonePlan copies the route and unassigned slices so callers never share a
// backing array with the stored plan, which UpdateRouteStatus mutates in
// place.
func clonePlan(p model.Plan) model.Plan {
	p.Routes = append([]model.Route(nil), p.Routes...)
	p.Unassigned = append([]model.UnassignedStop(nil), p.Unassigned...)
	return p
}

func (s *Memory) SavePlan(_ context.Context, plan model.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (s *Memory) GetPlan(_ context.Context, id string) (model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return model.Plan{}, ErrNotFound
	}
	return clonePlan(p), nil
}

func (s *Memory) ListPlans(_ context.Context, planDate string, limit int) ([]model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Plan{}
	for _, p := range s.plans {
		if planDate != "" && p.PlanDate != planDate {
			continue
		}
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt != out[b].CreatedAt {
			return out[a].CreatedAt > out[b].CreatedAt
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) UpdateRouteStatus(_ context.Context, planID, routeID string, status model.RouteStatus) (model.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	for i := range p.Routes {
		if p.Routes[i].ID != routeID {
			continue
		}
		if !model.ValidTransition(p.Routes[i].Status, status) {
			return model.Route{}, ErrInvalidTransition
		}
		p.Routes[i].Status = status
		s.plans[planID] = p
		return p.Routes[i], nil
	}
	return model.Route{}, ErrNotFound
}

func (s *Memory) CreateSubscription(_ context.Context, sub Subscription) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.New().String()
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *Memory) ListSubscriptions(_ context.Context) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Memory) SubscriptionsForEvent(_ context.Context, eventType string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Subscription{}
	for _, sub := range s.subs {
		for _, e := range sub.Events {
			if e == eventType || e == "*" {
				out = append(out, sub)
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Memory) DeleteSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrNotFound
	}
	delete(s.subs, id)
	return nil
}

func (s *Memory) EnqueueWebhook(_ context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.deliveries[id] = &WebhookDelivery{
		ID:             id,
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         "pending",
		NextAttemptAt:  time.Now(),
	}
	return id, nil
}

func (s *Memory) FetchDueWebhookDeliveries(_ context.Context, limit int) ([]WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range s.deliveries {
		if d.Status == "pending" && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) MarkWebhookDelivery(_ context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	if success {
		d.Status = "delivered"
		return nil
	}
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (s *Memory) FailWebhookDelivery(_ context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	return nil
}
