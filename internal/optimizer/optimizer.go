// internal/optimizer/optimizer.go
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/models"
)

var (
	// ErrInvalidPrice is returned when a food in the run has no usable price.
	ErrInvalidPrice = errors.New("food price must be known and positive")
	// ErrUnknownFood is returned when a request names a food outside the snapshot.
	ErrUnknownFood = errors.New("unknown food")
	// ErrInvalidInput is returned for malformed request values such as a negative minimum.
	ErrInvalidInput = errors.New("invalid optimization request")
	// ErrNoRuns is returned by history lookups before the first run.
	ErrNoRuns = errors.New("no optimization runs")
	// ErrRunNotFound is returned for a run index outside the history.
	ErrRunNotFound = errors.New("run not found")
	// ErrSolver wraps a simplex failure; the run is still recorded.
	ErrSolver = errors.New("solver did not reach an optimum")
)

const (
	// DefaultPenalty is the objective weight of one unit of slack.
	DefaultPenalty = 10000.0
	// DefaultTolerance is the simplex reduced-cost tolerance.
	DefaultTolerance = 1e-10
)

// Options tunes the LP.
type Options struct {
	// Penalty weighs every slack unit in the objective.
	Penalty float64
	// Tolerance is passed to the simplex and also snaps round-off to zero.
	Tolerance float64
}

// DefaultOptions returns the default penalty and tolerance.
func DefaultOptions() Options {
	return Options{Penalty: DefaultPenalty, Tolerance: DefaultTolerance}
}

// Observer is notified of every recorded run.
type Observer interface {
	ObserveRun(run *Run)
}

// Request describes one optimization.
type Request struct {
	// ActiveIDs scopes the foods; nil uses the pantry's active set.
	ActiveIDs []int64
	// PriceOverrides replaces prices per 100 g in the run's snapshot only.
	PriceOverrides map[int64]float64
	// MinAmounts forces at least this many grams of a food.
	MinAmounts map[int64]float64
	// Constraints may be nil, which leaves nothing to satisfy.
	Constraints *constraints.Set
}

// Optimizer solves minimum-cost diets and keeps every run it performed.
type Optimizer struct {
	logger    *zap.Logger
	opts      Options
	observers []Observer

	mu   sync.RWMutex
	runs []*Run
}

func New(logger *zap.Logger, opts Options, observers ...Observer) *Optimizer {
	if opts.Penalty <= 0 {
		opts.Penalty = DefaultPenalty
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	return &Optimizer{
		logger:    logger.Named("optimizer"),
		opts:      opts,
		observers: observers,
	}
}

// Optimize snapshots the requested foods, builds the slacked LP and solves it. Request
// errors are returned before anything is recorded. A solver failure is recorded as a run
// with a non-optimal status and returned together with an error wrapping ErrSolver.
func (o *Optimizer) Optimize(ctx context.Context, pantry *catalog.Pantry, req Request) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	foods, err := snapshot(pantry, req)
	if err != nil {
		return nil, err
	}
	var cs []models.NutrientConstraint
	if req.Constraints != nil {
		cs = req.Constraints.Constraints()
	}
	m, err := buildModel(foods, cs, req.MinAmounts, o.opts.Penalty)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sol, solveErr := m.solve(o.opts.Tolerance)
	run := newRun(m, sol, statusOf(solveErr))
	run.Foods = foods
	run.CreatedAt = start.UTC()
	run.Duration = time.Since(start)

	o.record(run)

	if solveErr != nil {
		o.logger.Error("Optimization failed",
			zap.Int("run", run.Index),
			zap.String("status", string(run.Status)),
			zap.Error(solveErr))
		return run, fmt.Errorf("%w: %v", ErrSolver, solveErr)
	}
	if sol.dualErr != nil {
		o.logger.Warn("Shadow prices unavailable", zap.Int("run", run.Index), zap.Error(sol.dualErr))
	}
	o.logger.Info("Optimization complete",
		zap.Int("run", run.Index),
		zap.Int("foods", len(foods)),
		zap.Int("constraints", len(cs)),
		zap.Float64("total_cost", run.TotalCost()),
		zap.Float64("slack_total", run.SlackTotal()),
		zap.Bool("feasible", run.Feasible()),
		zap.Duration("duration", run.Duration))
	return run, nil
}

func (o *Optimizer) record(run *Run) {
	o.mu.Lock()
	run.Index = len(o.runs)
	o.runs = append(o.runs, run)
	o.mu.Unlock()

	for _, obs := range o.observers {
		obs.ObserveRun(run)
	}
}

// snapshot copies the requested foods and applies the request's overrides to the copies.
func snapshot(pantry *catalog.Pantry, req Request) (map[int64]*models.Food, error) {
	var foods map[int64]*models.Food
	if req.ActiveIDs == nil {
		foods = pantry.Active()
	} else {
		foods = make(map[int64]*models.Food, len(req.ActiveIDs))
		for _, id := range req.ActiveIDs {
			food, err := pantry.Get(id)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnknownFood, err)
			}
			foods[id] = food.Clone()
		}
	}

	for id, price := range req.PriceOverrides {
		food, ok := foods[id]
		if !ok {
			return nil, fmt.Errorf("%w: price override for food %d outside the active set", ErrUnknownFood, id)
		}
		if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, fmt.Errorf("%w: food %d override %v", ErrInvalidPrice, id, price)
		}
		food.SetPrice(price)
	}
	for id, grams := range req.MinAmounts {
		if _, ok := foods[id]; !ok {
			return nil, fmt.Errorf("%w: minimum amount for food %d outside the active set", ErrUnknownFood, id)
		}
		if grams < 0 || math.IsNaN(grams) || math.IsInf(grams, 0) {
			return nil, fmt.Errorf("%w: food %d minimum amount %v", ErrInvalidInput, id, grams)
		}
	}
	for id, food := range foods {
		if p, ok := food.Price(); !ok || p <= 0 {
			return nil, fmt.Errorf("%w: food %d (%s)", ErrInvalidPrice, id, food.Name)
		}
	}
	return foods, nil
}

// Runs returns the history, oldest first.
func (o *Optimizer) Runs() []*Run {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*Run(nil), o.runs...)
}

// Run returns the run with the given index.
func (o *Optimizer) Run(index int) (*Run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if index < 0 || index >= len(o.runs) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, index)
	}
	return o.runs[index], nil
}

// Latest returns the most recent run.
func (o *Optimizer) Latest() (*Run, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.runs) == 0 {
		return nil, ErrNoRuns
	}
	return o.runs[len(o.runs)-1], nil
}

func (o *Optimizer) OptimalFoods() ([]FoodAmount, error) {
	run, err := o.Latest()
	if err != nil {
		return nil, err
	}
	return run.OptimalFoods(), nil
}

func (o *Optimizer) ShadowPrices() ([]ShadowPrice, error) {
	run, err := o.Latest()
	if err != nil {
		return nil, err
	}
	return run.ShadowPrices(), nil
}

func (o *Optimizer) SlackVariables() ([]Variable, error) {
	run, err := o.Latest()
	if err != nil {
		return nil, err
	}
	return run.SlackVariables(), nil
}

func (o *Optimizer) OptimalValues() (map[string]float64, error) {
	run, err := o.Latest()
	if err != nil {
		return nil, err
	}
	return run.OptimalValues(), nil
}
