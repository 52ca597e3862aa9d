// Package solver implements the anytime VRPTW search: greedy insertion
// construction followed by an adaptive large-neighborhood improvement loop
// with simulated-annealing acceptance. Time windows are hard: the solver
// never places a stop outside its window, and stops it cannot place feasibly
// are soft-dropped to the unassigned pool.
package solver

import (
	"context"
	"math"
	"math/rand"
	"time"

	"routeflow/internal/constraint"
	"routeflow/internal/model"
)

// Options tunes one run. Zero values fall back to defaults; Seed is used
// verbatim so identical configs replay identical searches.
type Options struct {
	Seed int64
	// TimeBudget is a wall-clock cutoff. On its own it can end two
	// identical runs at different iteration counts; set MaxIterations as
	// well when runs must replay byte for byte.
	TimeBudget    time.Duration
	MaxIterations int
	InitialTemp   float64
	Cooling       float64
}

const (
	DefaultTimeBudget  = 30 * time.Second
	defaultInitialTemp = 1.0
	defaultCooling     = 0.995
)

// Unassigned is a node the solver could not place, with the reason.
type Unassigned struct {
	Node   int
	Reason model.UnassignedReason
}

// Result carries the best solution found within the budget.
type Result struct {
	Orders      [][]int // per vehicle, node indices in visit order
	Unassigned  []Unassigned
	Diagnostics model.Diagnostics
}

// Solve runs both phases. It is anytime: on deadline or context cancellation
// it returns the best solution found so far; timeout is a diagnostic, not an
// error. Identical model + options produce identical results.
func Solve(ctx context.Context, m *constraint.Model, opts Options) Result {
	start := time.Now()
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = DefaultTimeBudget
	}
	temp := opts.InitialTemp
	if temp <= 0 {
		temp = defaultInitialTemp
	}
	cool := opts.Cooling
	if cool <= 0 || cool >= 1 {
		cool = defaultCooling
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	curr := construct(m)
	best := curr.clone()

	diag := model.Diagnostics{
		BestCost:       best.cost,
		RemovalWeights: [2]float64{1, 1},
		InsertWeights:  [2]float64{1, 1},
	}
	remW := []float64{1, 1} // random, shaw
	insW := []float64{1, 1} // greedy, regret-2

	deadline := start.Add(opts.TimeBudget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for best.assignedCount() > 0 {
		if ctx.Err() != nil {
			break
		}
		if !time.Now().Before(deadline) {
			diag.TimedOut = true
			break
		}
		if opts.MaxIterations > 0 && diag.Iterations >= opts.MaxIterations {
			break
		}
		diag.Iterations++

		k := 1 + rng.Intn(3)
		rop := selectOp(remW, rng)
		iop := selectOp(insW, rng)
		diag.RemovalSelects[rop]++
		diag.InsertSelects[iop]++

		var removed []int
		switch rop {
		case 0:
			removed = removeRandom(curr, k, rng)
		case 1:
			removed = removeShaw(m, curr, k, rng)
		}
		// Give previously dropped stops another chance each iteration.
		pool := append(removed, curr.unassigned...)
		curr.unassigned = curr.unassigned[:0]
		switch iop {
		case 0:
			insertGreedy(m, curr, pool)
		case 1:
			insertRegret2(m, curr, pool)
		}

		twoOpt(m, curr)
		orOptRelocate(m, curr)
		crossExchange(m, curr)
		twoOptStar(m, curr)
		curr.cost = cost(m, curr)

		delta := curr.cost - best.cost
		switch {
		case delta < 0:
			best = curr.clone()
			diag.Improvements++
			diag.BestCost = best.cost
			remW[rop] += 0.1
			insW[iop] += 0.1
		case rng.Float64() < math.Exp(-delta/(temp+1e-9)):
			// accepted worse: keep exploring from here
			diag.AcceptedWorse++
			remW[rop] += 0.01
			insW[iop] += 0.01
		default:
			curr = best.clone()
			remW[rop] = math.Max(0.01, remW[rop]*0.999)
			insW[iop] = math.Max(0.01, insW[iop]*0.999)
		}
		temp *= cool
	}

	diag.RemovalWeights = [2]float64{remW[0], remW[1]}
	diag.InsertWeights = [2]float64{insW[0], insW[1]}
	diag.BestCost = best.cost
	diag.ElapsedMs = time.Since(start).Milliseconds()

	return Result{
		Orders:      best.orders,
		Unassigned:  classifyUnassigned(m, best),
		Diagnostics: diag,
	}
}

// selectOp draws an operator index by roulette wheel over adaptive weights.
func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
