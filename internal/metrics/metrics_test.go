// internal/metrics/metrics_test.go
package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/models"
	"mcp-diet-opt/internal/optimizer"
)

func TestObserveRun(t *testing.T) {
	m := New()
	o := optimizer.New(zap.NewNop(), optimizer.DefaultOptions(), m)

	pantry := catalog.NewPantry()
	require.NoError(t, pantry.Add(models.NewFood(1, "Rice", 0.20, map[int]float64{208: 130}), true))

	feasible := constraints.NewSet()
	require.NoError(t, feasible.Add(models.NewNutrientConstraint(models.LowerBound, 1300, 208)))
	_, err := o.Optimize(context.Background(), pantry, optimizer.Request{Constraints: feasible})
	require.NoError(t, err)

	contradictory := constraints.NewSet()
	require.NoError(t, contradictory.AddAll([]models.NutrientConstraint{
		models.NewNutrientConstraint(models.LowerBound, 100, 208),
		models.NewNutrientConstraint(models.UpperBound, 50, 208),
	}))
	_, err = o.Optimize(context.Background(), pantry, optimizer.Request{Constraints: contradictory})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues(string(optimizer.StatusOptimal))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.infeasibleRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeFoods))
	assert.InDelta(t, 50, testutil.ToFloat64(m.slackTotal), 1e-6)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "diet_opt_solve_duration_seconds_count 2")
}

func TestHandler(t *testing.T) {
	m := New()
	m.runsTotal.WithLabelValues("optimal").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `diet_opt_runs_total{status="optimal"} 1`)
}
