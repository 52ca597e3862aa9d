package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"routeflow/internal/metrics"
	"routeflow/internal/store"
)

// Worker drains due webhook deliveries with exponential backoff.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Log         zerolog.Logger
	MaxAttempts int

	stop chan struct{}
}

func NewWorker(s store.Store, log zerolog.Logger) *Worker {
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Log:         log,
		MaxAttempts: 10,
		stop:        make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) Stop() { close(w.stop) }

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil || len(items) == 0 {
		return
	}
	for _, it := range items {
		success := w.deliver(ctx, it)
		status := "failed"
		if success {
			status = "delivered"
		}
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error())
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}

	resp, err := w.HTTP.Do(req)
	success := false
	if err == nil && resp != nil {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		success = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	}
	if !success && it.Attempts+1 >= w.MaxAttempts {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr)
		w.Log.Warn().Str("delivery", it.ID).Str("event", it.EventType).Msg("webhook delivery exhausted retries")
		return false
	}
	next := time.Now().Add(nextBackoff(it.Attempts))
	_ = w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr)
	return success
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
