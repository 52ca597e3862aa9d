package webhooks

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"routeflow/internal/store"
)

// Event types emitted by the service shell.
const (
	EventPlanOptimized      = "plan.optimized"
	EventRouteStatusChanged = "route.status_changed"
)

// Publisher fans an event out to every matching subscription by enqueueing
// deliveries; the Worker drains the queue.
type Publisher struct {
	Store store.Store
	Log   zerolog.Logger
}

func NewPublisher(s store.Store, log zerolog.Logger) *Publisher {
	return &Publisher{Store: s, Log: log}
}

func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) {
	subs, err := p.Store.SubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	body, err := json.Marshal(map[string]any{"type": eventType, "data": payload})
	if err != nil {
		return
	}
	for _, sub := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, sub.ID, eventType, sub.URL, sub.Secret, body); err != nil {
			p.Log.Error().Err(err).Str("subscription", sub.ID).Msg("enqueue webhook")
		}
	}
}
