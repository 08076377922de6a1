// internal/optimizer/optimizer_test.go
package optimizer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/models"
)

const (
	riceID    int64 = 1001
	chickenID int64 = 1002
	beansID   int64 = 1003

	energy   = 208
	protein  = 203
	fat      = 204
	fiber    = 291
	calcium  = 301
	iron     = 303
	sodium   = 307
	vitaminC = 401
)

func testPantry(t *testing.T) *catalog.Pantry {
	t.Helper()
	p := catalog.NewPantry()
	require.NoError(t, p.Add(models.NewFood(riceID, "Rice", 0.20, map[int]float64{energy: 130, protein: 2.7, fat: 0.3}), true))
	require.NoError(t, p.Add(models.NewFood(chickenID, "Chicken", 0.80, map[int]float64{energy: 165, protein: 31, fat: 3.6}), true))
	require.NoError(t, p.Add(models.NewFood(beansID, "Beans", 0.35, map[int]float64{energy: 127, protein: 8.7, fat: 0.5}), false))
	return p
}

func constraintSet(t *testing.T, cs ...models.NutrientConstraint) *constraints.Set {
	t.Helper()
	s := constraints.NewSet()
	require.NoError(t, s.AddAll(cs))
	return s
}

func newTestOptimizer() *Optimizer {
	return New(zap.NewNop(), DefaultOptions())
}

func TestOptimize_CheapestCalories(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 2000, energy)),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, run.Status)
	assert.True(t, run.Feasible())
	assert.Zero(t, run.SlackTotal())

	foods := run.OptimalFoods()
	require.Len(t, foods, 1)
	assert.Equal(t, riceID, foods[0].FoodID)
	assert.Equal(t, "Rice", foods[0].Name)
	assert.InDelta(t, 2000.0/130*100, foods[0].Grams, 1e-6)
	assert.InDelta(t, 2000.0/650, foods[0].Cost, 1e-9)
	assert.InDelta(t, 2000.0/650, run.TotalCost(), 1e-9)
	assert.InDelta(t, 2000.0/650, run.Objective, 1e-9)

	for _, s := range run.SlackVariables() {
		assert.Zero(t, s.Value, s.Name)
	}
}

func TestOptimize_ContradictoryBoundsAbsorbedBySlack(t *testing.T) {
	o := newTestOptimizer()
	pantry := testPantry(t)
	require.NoError(t, pantry.SetActive(chickenID))

	run, err := o.Optimize(context.Background(), pantry, Request{
		Constraints: constraintSet(t,
			models.NewNutrientConstraint(models.LowerBound, 100, energy),
			models.NewNutrientConstraint(models.UpperBound, 50, energy),
		),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, run.Status)
	assert.False(t, run.Feasible())
	assert.InDelta(t, 50, run.SlackTotal(), 1e-6)

	var nonzero int
	for _, s := range run.SlackVariables() {
		if s.Value != 0 {
			nonzero++
		}
	}
	assert.GreaterOrEqual(t, nonzero, 1)
}

func TestOptimize_MissingNutrientContributesZero(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		Constraints: constraintSet(t,
			models.NewNutrientConstraint(models.LowerBound, 10, 9999),
			models.NewNutrientConstraint(models.UpperBound, 5000, energy),
		),
	})
	require.NoError(t, err)

	assert.Empty(t, run.OptimalFoods())
	values := run.OptimalValues()
	assert.InDelta(t, 10, values[SlackVariableName("9999:lower_bound", true)], 1e-9)
	assert.Zero(t, values[SlackVariableName("9999:lower_bound", false)])
	assert.InDelta(t, 10, run.SlackTotal(), 1e-9)
}

func TestOptimize_ConstraintsSatisfiedWhenSlackIsZero(t *testing.T) {
	o := newTestOptimizer()
	pantry := testPantry(t)
	require.NoError(t, pantry.SetActive(riceID, chickenID, beansID))

	set := constraintSet(t,
		models.NewNutrientConstraint(models.LowerBound, 2000, energy),
		models.NewNutrientConstraint(models.UpperBound, 2600, energy),
		models.NewNutrientConstraint(models.LowerBound, 90, protein),
		models.NewNutrientConstraint(models.UpperBound, 70, fat),
		models.NewNutrientConstraint(models.LowerBound, 120, protein, fat),
	)
	run, err := o.Optimize(context.Background(), pantry, Request{Constraints: set})
	require.NoError(t, err)
	require.True(t, run.Feasible())

	const tol = 1e-6
	for _, c := range run.Constraints {
		got := run.Achieved(c)
		switch c.Kind {
		case models.LowerBound:
			assert.GreaterOrEqual(t, got, c.Target-tol, c.Name)
		case models.UpperBound:
			assert.LessOrEqual(t, got, c.Target+tol, c.Name)
		case models.Equality:
			assert.InDelta(t, c.Target, got, tol, c.Name)
		}
	}

	var sum float64
	for _, f := range run.OptimalFoods() {
		sum += f.Cost
		assert.InDelta(t, f.Cost, f.Grams*f.PricePer100g/100, 1e-9)
	}
	assert.InDelta(t, run.TotalCost(), sum, 1e-9)
}

func TestOptimize_Equality(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.Equality, 1000, energy)),
	})
	require.NoError(t, err)
	require.True(t, run.Feasible())

	nutrition := run.NutritionFacts()
	assert.InDelta(t, 1000, nutrition[energy], 1e-6)
}

func TestOptimize_InactiveFoodsNeverSelected(t *testing.T) {
	o := newTestOptimizer()
	pantry := testPantry(t)
	require.NoError(t, pantry.SetActive(chickenID))

	run, err := o.Optimize(context.Background(), pantry, Request{
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 2000, energy)),
	})
	require.NoError(t, err)

	for _, f := range run.OptimalFoods() {
		assert.Equal(t, chickenID, f.FoodID)
	}
	_, hasRice := run.OptimalValues()[FoodVariableName(riceID)]
	assert.False(t, hasRice)
}

func TestOptimize_ExplicitActiveIDs(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		ActiveIDs:   []int64{beansID},
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 1270, energy)),
	})
	require.NoError(t, err)

	foods := run.OptimalFoods()
	require.Len(t, foods, 1)
	assert.Equal(t, beansID, foods[0].FoodID)
	assert.InDelta(t, 1000, foods[0].Grams, 1e-6)
}

func TestOptimize_RepeatedSolveSameCost(t *testing.T) {
	o := newTestOptimizer()
	pantry := testPantry(t)
	set := constraintSet(t,
		models.NewNutrientConstraint(models.LowerBound, 2000, energy),
		models.NewNutrientConstraint(models.LowerBound, 60, protein),
	)

	first, err := o.Optimize(context.Background(), pantry, Request{Constraints: set})
	require.NoError(t, err)
	second, err := o.Optimize(context.Background(), pantry, Request{Constraints: set})
	require.NoError(t, err)

	assert.InDelta(t, first.TotalCost(), second.TotalCost(), 1e-9)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestOptimize_ShadowPrices(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		Constraints: constraintSet(t,
			models.NewNutrientConstraint(models.LowerBound, 2000, energy),
			models.NewNutrientConstraint(models.UpperBound, 100, fat),
		),
	})
	require.NoError(t, err)
	require.True(t, run.HasShadowPrices())

	prices := make(map[string]float64)
	for _, sp := range run.ShadowPrices() {
		prices[sp.Constraint] = sp.Value
	}
	require.Len(t, prices, 2)
	assert.InDelta(t, 1.0/650, prices["208:lower_bound"], 1e-9)
	assert.InDelta(t, 0, prices["204:upper_bound"], 1e-9)
}

func mixedDietPantry(t *testing.T) *catalog.Pantry {
	t.Helper()
	// energy, protein, fat, fiber, calcium, iron, vitamin C, sodium per 100 g
	rows := []struct {
		id     int64
		name   string
		price  float64
		values [8]float64
	}{
		{1, "Oats", 0.30, [8]float64{389, 16.9, 6.9, 10.6, 54, 4.7, 0, 2}},
		{2, "Milk", 0.10, [8]float64{61, 3.2, 3.3, 0, 113, 0.03, 0, 43}},
		{3, "Lentils", 0.35, [8]float64{116, 9, 0.4, 7.9, 19, 3.3, 1.5, 2}},
		{4, "Spinach", 0.90, [8]float64{23, 2.9, 0.4, 2.2, 99, 2.7, 28, 79}},
		{5, "Orange", 0.40, [8]float64{47, 0.9, 0.1, 2.4, 40, 0.1, 53, 0}},
		{6, "Peanut butter", 0.70, [8]float64{588, 25, 50, 6, 43, 1.9, 0, 459}},
		{7, "Eggs", 0.50, [8]float64{155, 13, 11, 0, 50, 1.2, 0, 124}},
		{8, "Potato", 0.15, [8]float64{77, 2, 0.1, 2.2, 12, 0.8, 19.7, 6}},
	}
	ids := []int{energy, protein, fat, fiber, calcium, iron, vitaminC, sodium}

	p := catalog.NewPantry()
	for _, r := range rows {
		nutrition := make(map[int]float64)
		for i, v := range r.values {
			if v != 0 {
				nutrition[ids[i]] = v
			}
		}
		require.NoError(t, p.Add(models.NewFood(r.id, r.name, r.price, nutrition), true))
	}
	return p
}

func TestOptimize_ShadowPricesOnMixedDiet(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), mixedDietPantry(t), Request{
		Constraints: constraintSet(t,
			models.NewNutrientConstraint(models.LowerBound, 2000, energy),
			models.NewNutrientConstraint(models.LowerBound, 56, protein),
			models.NewNutrientConstraint(models.LowerBound, 30, fiber),
			models.NewNutrientConstraint(models.LowerBound, 1000, calcium),
			models.NewNutrientConstraint(models.LowerBound, 18, iron),
			models.NewNutrientConstraint(models.LowerBound, 90, vitaminC),
			models.NewNutrientConstraint(models.UpperBound, 70, fat),
			models.NewNutrientConstraint(models.UpperBound, 2300, sodium),
		),
	})
	require.NoError(t, err)
	require.True(t, run.Feasible())
	require.True(t, run.HasShadowPrices())
	require.Len(t, run.ShadowPrices(), 8)

	var dual float64
	for _, c := range run.Constraints {
		dual += c.Target * c.ShadowPrice
		switch c.Kind {
		case models.LowerBound:
			assert.GreaterOrEqual(t, c.ShadowPrice, 0.0, c.Name)
		case models.UpperBound:
			assert.LessOrEqual(t, c.ShadowPrice, 0.0, c.Name)
		}
		// a constraint with room to spare has no marginal value
		if achieved := run.Achieved(c); math.Abs(achieved-c.Target) > 1e-3*math.Max(1, math.Abs(c.Target)) {
			assert.InDelta(t, 0, c.ShadowPrice, 1e-7, c.Name)
		}
	}
	assert.InDelta(t, run.Objective, dual, 1e-6*math.Max(1, run.Objective))
	assert.InDelta(t, run.TotalCost(), run.Objective, 1e-9)
}

func TestOptimize_MinAmounts(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		MinAmounts:  map[int64]float64{chickenID: 200},
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 2000, energy)),
	})
	require.NoError(t, err)
	require.True(t, run.Feasible())

	got := make(map[int64]FoodAmount)
	for _, f := range run.OptimalFoods() {
		got[f.FoodID] = f
	}
	assert.InDelta(t, 200, got[chickenID].Grams, 1e-6)
	assert.InDelta(t, (2000.0-330)/650, got[riceID].Cost, 1e-9)
	assert.InDelta(t, 1.6+(2000.0-330)/650, run.TotalCost(), 1e-9)
}

func TestOptimize_MinAmountWithoutConstraints(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{
		MinAmounts: map[int64]float64{riceID: 500},
	})
	require.NoError(t, err)

	foods := run.OptimalFoods()
	require.Len(t, foods, 1)
	assert.InDelta(t, 500, foods[0].Grams, 1e-9)
	assert.InDelta(t, 1.0, run.Objective, 1e-9)
}

func TestOptimize_NoConstraints(t *testing.T) {
	o := newTestOptimizer()
	run, err := o.Optimize(context.Background(), testPantry(t), Request{})
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, run.Status)
	assert.True(t, run.Feasible())
	assert.Empty(t, run.OptimalFoods())
	assert.Empty(t, run.SlackVariables())
	assert.Zero(t, run.Objective)
}

func TestOptimize_PriceOverrideLeavesCatalogUntouched(t *testing.T) {
	o := newTestOptimizer()
	pantry := testPantry(t)

	run, err := o.Optimize(context.Background(), pantry, Request{
		PriceOverrides: map[int64]float64{chickenID: 0.05},
		Constraints:    constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 2000, energy)),
	})
	require.NoError(t, err)

	foods := run.OptimalFoods()
	require.Len(t, foods, 1)
	assert.Equal(t, chickenID, foods[0].FoodID)
	assert.InDelta(t, 0.05, foods[0].PricePer100g, 1e-12)

	chicken, err := pantry.Get(chickenID)
	require.NoError(t, err)
	price, _ := chicken.Price()
	assert.Equal(t, 0.80, price)
}

func TestOptimize_ConfigurationErrors(t *testing.T) {
	unpriced := &models.Food{ID: 2001, Name: "Mystery", Nutrition: map[int]float64{energy: 100}}

	tests := []struct {
		name    string
		setup   func(t *testing.T, p *catalog.Pantry)
		req     Request
		wantErr error
	}{
		{
			name:    "unknown active id",
			req:     Request{ActiveIDs: []int64{42}},
			wantErr: ErrUnknownFood,
		},
		{
			name:    "unknown price",
			setup:   func(t *testing.T, p *catalog.Pantry) { require.NoError(t, p.Add(unpriced, true)) },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "zero price",
			setup:   func(t *testing.T, p *catalog.Pantry) { require.NoError(t, p.SetPrice(riceID, 0)) },
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "zero price override",
			req:     Request{PriceOverrides: map[int64]float64{riceID: 0}},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "override for inactive food",
			req:     Request{PriceOverrides: map[int64]float64{beansID: 1}},
			wantErr: ErrUnknownFood,
		},
		{
			name:    "negative minimum",
			req:     Request{MinAmounts: map[int64]float64{riceID: -1}},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pantry := testPantry(t)
			if tt.setup != nil {
				tt.setup(t, pantry)
			}
			o := newTestOptimizer()

			run, err := o.Optimize(context.Background(), pantry, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, run)
			assert.Empty(t, o.Runs())
		})
	}
}

func TestOptimize_UnknownFoodIsLookupError(t *testing.T) {
	_, err := newTestOptimizer().Optimize(context.Background(), testPantry(t), Request{ActiveIDs: []int64{42}})
	assert.ErrorIs(t, err, catalog.ErrFoodNotFound)
}

func TestOptimize_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOptimizer()
	_, err := o.Optimize(ctx, testPantry(t), Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, o.Runs())
}

func TestOptimizer_History(t *testing.T) {
	o := newTestOptimizer()

	_, err := o.Latest()
	assert.ErrorIs(t, err, ErrNoRuns)
	_, err = o.OptimalFoods()
	assert.ErrorIs(t, err, ErrNoRuns)
	_, err = o.ShadowPrices()
	assert.ErrorIs(t, err, ErrNoRuns)

	pantry := testPantry(t)
	first, err := o.Optimize(context.Background(), pantry, Request{
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 1000, energy)),
	})
	require.NoError(t, err)
	second, err := o.Optimize(context.Background(), pantry, Request{
		Constraints: constraintSet(t, models.NewNutrientConstraint(models.LowerBound, 2000, energy)),
	})
	require.NoError(t, err)

	latest, err := o.Latest()
	require.NoError(t, err)
	assert.Same(t, second, latest)

	got, err := o.Run(0)
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = o.Run(5)
	assert.ErrorIs(t, err, ErrRunNotFound)

	foods, err := o.OptimalFoods()
	require.NoError(t, err)
	require.Len(t, foods, 1)
	assert.InDelta(t, 2000.0/650, foods[0].Cost, 1e-9)

	slacks, err := o.SlackVariables()
	require.NoError(t, err)
	assert.Len(t, slacks, 2)

	values, err := o.OptimalValues()
	require.NoError(t, err)
	assert.Len(t, values, 4)

	assert.Len(t, o.Runs(), 2)
}

type recordingObserver struct {
	runs []*Run
}

func (r *recordingObserver) ObserveRun(run *Run) {
	r.runs = append(r.runs, run)
}

func TestOptimizer_NotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	o := New(zap.NewNop(), DefaultOptions(), obs)

	run, err := o.Optimize(context.Background(), testPantry(t), Request{})
	require.NoError(t, err)
	require.Len(t, obs.runs, 1)
	assert.Same(t, run, obs.runs[0])
}
