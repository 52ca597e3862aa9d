// Package api exposes the optimization pipeline over HTTP: plan runs, plan
// retrieval, route status transitions, CSV export, webhook subscriptions, and
// live event streams (SSE and WebSocket).
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"routeflow/internal/config"
	"routeflow/internal/logging"
	"routeflow/internal/matrix"
	"routeflow/internal/metrics"
	"routeflow/internal/planner"
	"routeflow/internal/store"
	"routeflow/internal/webhooks"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Server struct {
	Cfg     *config.Config
	Store   store.Store
	Planner *planner.Planner
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Log     zerolog.Logger
}

// NewServer wires the store, broker, and planner from config. An empty
// database URL selects the in-memory store; an empty Redis URL selects the
// in-process broker and matrix cache.
func NewServer(cfg *config.Config) (*Server, error) {
	log := logging.New("api")

	var st store.Store
	if strings.TrimSpace(cfg.Database.URL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("api: open postgres: %w", err)
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("api: migrate: %w", err)
		}
		st = pg
	}

	var broker EventBroker
	var cache matrix.Cache
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("api: redis broker: %w", err)
		}
		broker = rb
		rc, err := matrix.NewRedisCache(cfg.Redis.URL, time.Duration(cfg.Redis.MatrixTTLHours)*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("api: redis cache: %w", err)
		}
		cache = rc
	} else {
		broker = NewBroker()
		cache = matrix.NewMemoryCache()
	}

	opts := []planner.Option{
		planner.WithCache(cache),
		planner.WithSpeed(cfg.Distance.AvgSpeedMph),
		planner.WithLogger(logging.New("planner")),
	}
	if cfg.Distance.BackendURL != "" {
		opts = append(opts, planner.WithPreciseBackend(
			matrix.NewPreciseProvider(cfg.Distance.BackendURL, cfg.Distance.BackendAPIKey, cfg.Distance.BackendRatePerS)))
	}

	return &Server{
		Cfg:     cfg,
		Store:   st,
		Planner: planner.New(opts...),
		Pub:     webhooks.NewPublisher(st, logging.New("webhooks")),
		Broker:  broker,
		Log:     log,
	}, nil
}

// NewWebhookWorker creates the background delivery worker bound to the store.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, logging.New("webhook-worker"))
}

// Routes builds the full handler tree with logging and metrics middleware.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/plans/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // includes /routes/{id}, /export.csv, /events

	mux.HandleFunc("/v1/webhooks/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/webhooks/subscriptions/", s.SubscriptionByIDHandler)

	mux.HandleFunc("/v1/ws", s.WSHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/version", s.VersionHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.instrument(mux)
}
