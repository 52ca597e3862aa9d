package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"routeflow/internal/store"
)

func TestSignHMAC(t *testing.T) {
	body := []byte(`{"id":"evt1"}`)
	sig := SignHMAC("secret", body)
	if sig == "" {
		t.Fatal("empty signature")
	}
	if !VerifyHMAC("secret", body, sig) {
		t.Fatal("signature must verify with the same secret")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatal("signature must not verify with a different secret")
	}
	if VerifyHMAC("secret", []byte(`{"id":"evt2"}`), sig) {
		t.Fatal("signature must not verify for a different body")
	}
}

func TestPublisherEnqueuesMatching(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	match, _ := s.CreateSubscription(ctx, store.Subscription{URL: "https://a.example/hook", Events: []string{EventPlanOptimized}})
	_, _ = s.CreateSubscription(ctx, store.Subscription{URL: "https://b.example/hook", Events: []string{EventRouteStatusChanged}})

	p := NewPublisher(s, zerolog.Nop())
	p.Publish(ctx, EventPlanOptimized, map[string]any{"planId": "p1"})

	due, _ := s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(due))
	}
	if due[0].SubscriptionID != match.ID || due[0].EventType != EventPlanOptimized {
		t.Fatalf("wrong delivery: %+v", due[0])
	}
}

func TestWorkerDeliversWithSignature(t *testing.T) {
	var gotSig, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := store.NewMemory()
	payload := []byte(`{"planId":"p1"}`)
	if _, err := s.EnqueueWebhook(ctx, "sub1", EventPlanOptimized, srv.URL, "topsecret", payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := NewWorker(s, zerolog.Nop())
	w.HTTP = srv.Client()
	w.processOnce()

	if gotType != EventPlanOptimized {
		t.Fatalf("event type header: %q", gotType)
	}
	if gotSig != SignHMAC("topsecret", payload) {
		t.Fatalf("bad signature header: %q", gotSig)
	}
	if gotBody != string(payload) {
		t.Fatalf("body mangled: %q", gotBody)
	}

	due, _ := s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered item still due: %+v", due)
	}
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := store.NewMemory()
	_, _ = s.EnqueueWebhook(ctx, "sub1", EventPlanOptimized, srv.URL, "", []byte(`{}`))

	w := NewWorker(s, zerolog.Nop())
	w.HTTP = srv.Client()
	w.processOnce()

	// the failed attempt reschedules into the future
	due, _ := s.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("failed delivery should be backed off: %+v", due)
	}
}

func TestWorkerExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := store.NewMemory()
	id, _ := s.EnqueueWebhook(ctx, "sub1", EventPlanOptimized, srv.URL, "", []byte(`{}`))

	w := NewWorker(s, zerolog.Nop())
	w.HTTP = srv.Client()
	w.MaxAttempts = 1
	w.processOnce()

	// terminal failure: never due again even after the backoff window
	due, _ := s.FetchDueWebhookDeliveries(ctx, 10)
	for _, d := range due {
		if d.ID == id {
			t.Fatal("exhausted delivery must be terminal")
		}
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second {
		t.Fatalf("first retry: %v", nextBackoff(0))
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("fourth retry: %v", nextBackoff(3))
	}
	if nextBackoff(30) > time.Hour {
		t.Fatalf("backoff must cap at an hour: %v", nextBackoff(30))
	}
	if nextBackoff(-2) != time.Second {
		t.Fatalf("negative attempts: %v", nextBackoff(-2))
	}
}
