// internal/report/report_test.go
package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/models"
	"mcp-diet-opt/internal/optimizer"
)

func fixtures(t *testing.T) (*catalog.Pantry, *catalog.NutrientCatalog) {
	t.Helper()
	pantry := catalog.NewPantry()
	require.NoError(t, pantry.Add(models.NewFood(1, "Rice", 0.20, map[int]float64{208: 130, 203: 2.7, 9000: 1}), true))
	require.NoError(t, pantry.Add(models.NewFood(2, "Chicken", 0.80, map[int]float64{208: 165, 203: 31}), true))

	nutrients := catalog.NewNutrientCatalog()
	nutrients.Add(models.Nutrient{ID: 208, Name: "Energy", Unit: "kcal"})
	nutrients.Add(models.Nutrient{ID: 203, Name: "Protein", Unit: "g"})
	return pantry, nutrients
}

func solve(t *testing.T, pantry *catalog.Pantry, cs ...models.NutrientConstraint) *optimizer.Run {
	t.Helper()
	set := constraints.NewSet()
	require.NoError(t, set.AddAll(cs))
	run, err := optimizer.New(zap.NewNop(), optimizer.DefaultOptions()).
		Optimize(context.Background(), pantry, optimizer.Request{Constraints: set})
	require.NoError(t, err)
	return run
}

func TestBuild_Feasible(t *testing.T) {
	pantry, nutrients := fixtures(t)
	run := solve(t, pantry,
		models.NewNutrientConstraint(models.LowerBound, 2000, 208),
		models.NewNutrientConstraint(models.UpperBound, 500, 203),
	)

	r := Build(run, nutrients, false)

	assert.True(t, r.Summary.Feasible)
	assert.Equal(t, 1, r.Summary.NumFoods)
	assert.InDelta(t, 2000.0/650, r.Summary.TotalCost, 1e-9)
	assert.Equal(t, run.ID.String(), r.Summary.ID)
	assert.Empty(t, r.Diagnostics)

	require.Len(t, r.ShadowPrices, 1)
	assert.Equal(t, "208:lower_bound", r.ShadowPrices[0].Constraint)
	assert.Equal(t, "Energy", r.ShadowPrices[0].Nutrients)
	assert.InDelta(t, 1.0/650, r.ShadowPrices[0].Value, 1e-9)

	all := ShadowPrices(run, nutrients, true)
	assert.Len(t, all, 2)

	for _, c := range r.Checks {
		assert.True(t, c.Satisfied, c.Constraint)
	}
}

func TestNutritionFacts_NamesAndUnknowns(t *testing.T) {
	pantry, nutrients := fixtures(t)
	run := solve(t, pantry, models.NewNutrientConstraint(models.LowerBound, 1300, 208))

	facts := NutritionFacts(run, nutrients)
	require.Len(t, facts, 3)

	assert.Equal(t, 203, facts[0].NutrientID)
	assert.Equal(t, "Protein", facts[0].Name)
	assert.InDelta(t, 27, facts[0].Amount, 1e-6)

	assert.Equal(t, 208, facts[1].NutrientID)
	assert.Equal(t, "kcal", facts[1].Unit)
	assert.InDelta(t, 1300, facts[1].Amount, 1e-6)

	assert.Equal(t, catalog.UnknownNutrientName, facts[2].Name)
	assert.Empty(t, facts[2].Unit)
}

func TestDiagnostics_Infeasible(t *testing.T) {
	pantry, nutrients := fixtures(t)
	run := solve(t, pantry,
		models.NewNutrientConstraint(models.LowerBound, 100, 208, 203),
		models.NewNutrientConstraint(models.UpperBound, 50, 208, 203),
	)

	r := Build(run, nutrients, false)
	assert.False(t, r.Summary.Feasible)
	assert.InDelta(t, 50, r.Summary.SlackTotal, 1e-6)

	require.NotEmpty(t, r.Diagnostics)
	var total float64
	for _, d := range r.Diagnostics {
		assert.Equal(t, "Protein + Energy", d.Nutrients)
		assert.Contains(t, []string{"up", "down"}, d.Direction)
		total += d.Value
	}
	assert.InDelta(t, 50, total, 1e-6)

	var unmet int
	for _, c := range r.Checks {
		if !c.Satisfied {
			unmet++
		}
	}
	assert.Equal(t, 1, unmet)
}

func TestCheckConstraints_Equality(t *testing.T) {
	pantry, nutrients := fixtures(t)
	run := solve(t, pantry, models.NewNutrientConstraint(models.Equality, 650, 208))

	checks := CheckConstraints(run, nutrients, DefaultTolerance)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Satisfied)
	assert.InDelta(t, 650, checks[0].Achieved, 1e-6)
	assert.Equal(t, "equality", checks[0].Kind)
}
