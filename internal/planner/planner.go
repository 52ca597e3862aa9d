// Package planner runs the optimization pipeline: validation, distance
// matrix, constraint model, solver, assembly, scoring. A Planner holds only
// immutable configuration and a shared read-only matrix cache, so concurrent
// runs for different inputs need no coordination.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"routeflow/internal/assemble"
	"routeflow/internal/constraint"
	"routeflow/internal/matrix"
	"routeflow/internal/metrics"
	"routeflow/internal/model"
	"routeflow/internal/score"
	"routeflow/internal/solver"
)

type Planner struct {
	euclidean matrix.Provider
	precise   matrix.Provider // nil when no backend is configured
	cache     matrix.Cache
	speedMph  float64
	weights   score.Weights
	log       zerolog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithPreciseBackend installs a routing-engine matrix provider; failures fall
// back to the default metric instead of aborting runs.
func WithPreciseBackend(p matrix.Provider) Option {
	return func(pl *Planner) { pl.precise = p }
}

func WithCache(c matrix.Cache) Option {
	return func(pl *Planner) { pl.cache = c }
}

func WithSpeed(mph float64) Option {
	return func(pl *Planner) {
		if mph > 0 {
			pl.speedMph = mph
		}
	}
}

func WithScoreWeights(w score.Weights) Option {
	return func(pl *Planner) { pl.weights = w }
}

func WithLogger(log zerolog.Logger) Option {
	return func(pl *Planner) { pl.log = log }
}

func New(opts ...Option) *Planner {
	pl := &Planner{
		speedMph: matrix.DefaultSpeedMph,
		weights:  score.DefaultWeights,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(pl)
	}
	pl.euclidean = matrix.NewHaversineProvider(pl.speedMph)
	if pl.cache == nil {
		pl.cache = matrix.NewMemoryCache()
	}
	return pl
}

// Plan executes one optimization run over an immutable input snapshot and
// returns a fresh Plan. Only input validation is fatal; every other
// condition degrades into the structured result.
func (p *Planner) Plan(ctx context.Context, req model.PlanRequest) (model.Plan, error) {
	start := time.Now()
	if err := constraint.ValidateInput(req.Stops, req.Technicians); err != nil {
		metrics.OptimizeRuns.WithLabelValues("invalid_input").Inc()
		return model.Plan{}, fmt.Errorf("plan: %w", err)
	}

	m, err := p.computeMatrix(ctx, req)
	if err != nil {
		return model.Plan{}, fmt.Errorf("plan: distance matrix: %w", err)
	}

	cm := constraint.Build(req.Stops, req.Technicians, m, req.Config)

	budget := time.Duration(req.Config.TimeBudgetSeconds * float64(time.Second))
	res := solver.Solve(ctx, cm, solver.Options{
		Seed:          req.Config.RandomSeed,
		TimeBudget:    budget,
		MaxIterations: req.Config.MaxIterations,
		InitialTemp:   req.Config.InitialTemp,
		Cooling:       req.Config.Cooling,
	})
	res.Diagnostics.MatrixDegraded = m.Degraded

	routes := assemble.Routes(cm, res.Orders)
	unassigned := assemble.UnassignedStops(cm, res.Unassigned)

	serviceMin := make(map[string]float64, len(req.Stops))
	for _, s := range req.Stops {
		serviceMin[s.ID] = s.ServiceDurationMin
	}
	for i := range routes {
		routes[i].Score = score.RouteScore(routes[i], serviceMin, p.weights)
	}
	sum := score.Score(routes, unassigned, serviceMin, p.weights)

	plan := model.Plan{
		ID:            uuid.New().String(),
		PlanDate:      req.PlanDate,
		Routes:        routes,
		Unassigned:    unassigned,
		TotalDistance: sum.TotalDistance,
		TotalDuration: sum.TotalDuration,
		Score:         sum.Score,
		Diagnostics:   res.Diagnostics,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	metrics.OptimizeRuns.WithLabelValues(outcome(res.Diagnostics)).Inc()
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	metrics.SolverIterations.Observe(float64(res.Diagnostics.Iterations))
	for _, u := range unassigned {
		metrics.UnassignedStops.WithLabelValues(string(u.Reason)).Inc()
	}
	p.log.Info().
		Str("plan_id", plan.ID).
		Int("stops", len(req.Stops)).
		Int("technicians", len(req.Technicians)).
		Int("routes", len(routes)).
		Int("unassigned", len(unassigned)).
		Float64("score", plan.Score).
		Bool("timed_out", res.Diagnostics.TimedOut).
		Dur("elapsed", time.Since(start)).
		Msg("plan optimized")

	return plan, nil
}

func (p *Planner) computeMatrix(ctx context.Context, req model.PlanRequest) (*matrix.Matrix, error) {
	metric := req.Config.DistanceMetric
	if metric == "" {
		metric = model.MetricEuclidean
	}
	key := matrix.Fingerprint(req.Stops, req.Depot, metric, p.speedMph)
	if m, ok := p.cache.Get(ctx, key); ok {
		metrics.MatrixCache.WithLabelValues("hit").Inc()
		return m, nil
	}
	metrics.MatrixCache.WithLabelValues("miss").Inc()

	provider := p.euclidean
	if metric == model.MetricPrecise && p.precise != nil {
		provider = &matrix.FallbackProvider{
			Primary:  p.precise,
			Fallback: p.euclidean,
			OnFallback: func(err error) {
				metrics.MatrixFallbacks.Inc()
				p.log.Warn().Err(err).Msg("distance backend unavailable, using default metric")
			},
		}
	}
	m, err := provider.Compute(ctx, req.Stops, req.Depot)
	if err != nil {
		return nil, err
	}
	p.cache.Put(ctx, key, m)
	return m, nil
}

func outcome(d model.Diagnostics) string {
	if d.TimedOut {
		return "timed_out"
	}
	return "completed"
}
