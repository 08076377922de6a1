// internal/optimizer/solve.go
package optimizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"mcp-diet-opt/internal/models"
)

// solution holds the values of every model variable after a solve.
type solution struct {
	objective float64
	food      []float64 // cost units, per model food
	up, down  []float64 // per row
	duals     []float64 // per row; nil when the dual solve failed
	dualErr   error
}

// standardForm is the model rewritten as min c'x s.t. Ax = b, x >= 0 for gonum's simplex.
//
// Column layout: foods that appear in at least one row, then an up and a down slack per
// row, then one surplus column per inequality row. Food variables are shifted by their
// lower bound so every column stays non-negative.
type standardForm struct {
	c       []float64
	a       *mat.Dense
	b       []float64
	basis   []int
	foodCol []int // model food index -> column, -1 when the food touches no row
	upCol   []int
	downCol []int

	foods   int // leading food columns
	kinds   []models.ConstraintKind
	penalty float64
}

func (m *model) standardForm() *standardForm {
	rows := len(m.rows)
	sf := &standardForm{
		foodCol: make([]int, len(m.foodIDs)),
		upCol:   make([]int, rows),
		downCol: make([]int, rows),
		kinds:   make([]models.ConstraintKind, rows),
		penalty: m.penalty,
	}

	cols := 0
	for i := range m.foodIDs {
		sf.foodCol[i] = -1
		for _, r := range m.rows {
			if r.coef[i] != 0 {
				sf.foodCol[i] = cols
				cols++
				break
			}
		}
	}
	sf.foods = cols
	for j, r := range m.rows {
		sf.kinds[j] = r.source.Kind
		sf.upCol[j] = cols
		sf.downCol[j] = cols + 1
		cols += 2
	}
	surplusCol := make([]int, rows)
	for j, r := range m.rows {
		surplusCol[j] = -1
		if r.source.Kind != models.Equality {
			surplusCol[j] = cols
			cols++
		}
	}

	sf.c = make([]float64, cols)
	sf.a = mat.NewDense(rows, cols, nil)
	sf.b = make([]float64, rows)
	sf.basis = make([]int, rows)

	for _, col := range sf.foodCol {
		if col >= 0 {
			sf.c[col] = 1
		}
	}
	for j, r := range m.rows {
		target := r.source.Value
		for i, coef := range r.coef {
			target -= coef * m.lower[i]
			if col := sf.foodCol[i]; col >= 0 {
				sf.a.Set(j, col, coef)
			}
		}
		sf.b[j] = target

		sf.c[sf.upCol[j]] = m.penalty
		sf.c[sf.downCol[j]] = m.penalty
		sf.a.Set(j, sf.upCol[j], 1)
		sf.a.Set(j, sf.downCol[j], -1)

		switch r.source.Kind {
		case models.LowerBound:
			sf.a.Set(j, surplusCol[j], -1)
		case models.UpperBound:
			sf.a.Set(j, surplusCol[j], 1)
		case models.Equality:
		}

		// A slack alone always satisfies its row, which gives a feasible starting basis.
		if target >= 0 {
			sf.basis[j] = sf.upCol[j]
		} else {
			sf.basis[j] = sf.downCol[j]
		}
	}
	return sf
}

// solve minimizes the model and recovers the row duals.
func (m *model) solve(tol float64) (*solution, error) {
	sol := &solution{
		food: append([]float64(nil), m.lower...),
		up:   make([]float64, len(m.rows)),
		down: make([]float64, len(m.rows)),
	}
	var fixed float64
	for _, l := range m.lower {
		fixed += l
	}
	if len(m.rows) == 0 {
		sol.objective = fixed
		return sol, nil
	}

	sf := m.standardForm()
	optF, x, err := lp.Simplex(sf.c, sf.a, sf.b, tol, sf.basis)
	if err != nil {
		return nil, err
	}
	for i, col := range sf.foodCol {
		if col >= 0 {
			sol.food[i] += clean(x[col], tol)
		}
	}
	for j := range m.rows {
		sol.up[j] = clean(x[sf.upCol[j]], tol)
		sol.down[j] = clean(x[sf.downCol[j]], tol)
	}
	sol.objective = optF + fixed
	sol.duals, sol.dualErr = sf.duals(tol)
	return sol, nil
}

// duals solves the dual LP, max b'y s.t. A'y <= c. The slack and surplus columns
// confine each y to a box: [0, P] for lower bounds, [-P, 0] for upper bounds and
// [-P, P] for equalities, with P the penalty. Substituting y = sign*z - shift with
// 0 <= z <= width leaves a bounded LP in z, which has no rays for the simplex to
// mistake for unboundedness.
func (sf *standardForm) duals(tol float64) ([]float64, error) {
	rows := len(sf.b)
	sign := make([]float64, rows)
	shift := make([]float64, rows)
	width := make([]float64, rows)
	for i, kind := range sf.kinds {
		switch kind {
		case models.LowerBound:
			sign[i], width[i] = 1, sf.penalty
		case models.UpperBound:
			sign[i], width[i] = -1, sf.penalty
		case models.Equality:
			sign[i], shift[i], width[i] = 1, sf.penalty, 2*sf.penalty
		}
	}

	// Columns: z per row, a slack per box row, a slack per food row.
	eqs := rows + sf.foods
	vars := 2*rows + sf.foods
	c := make([]float64, vars)
	a := mat.NewDense(eqs, vars, nil)
	b := make([]float64, eqs)
	basis := make([]int, eqs)
	for i := 0; i < rows; i++ {
		c[i] = -sign[i] * sf.b[i]
		a.Set(i, i, 1)
		a.Set(i, rows+i, 1)
		b[i] = width[i]
		basis[i] = rows + i
	}
	slackBasis := true
	for j := 0; j < sf.foods; j++ {
		e := rows + j
		rhs := sf.c[j]
		for i := 0; i < rows; i++ {
			v := sf.a.At(i, j)
			a.Set(e, i, sign[i]*v)
			rhs += shift[i] * v
		}
		a.Set(e, 2*rows+j, 1)
		b[e] = rhs
		basis[e] = 2*rows + j
		if rhs < 0 {
			slackBasis = false
		}
	}
	// Negative nutrient weights in an equality row can make a food row start
	// infeasible; let the simplex find its own basis then.
	if !slackBasis {
		basis = nil
	}

	_, z, err := lp.Simplex(c, a, b, tol, basis)
	if err != nil {
		return nil, fmt.Errorf("dual solve: %w", err)
	}
	out := make([]float64, rows)
	for i := range out {
		out[i] = clean(sign[i]*z[i]-shift[i], tol)
	}
	return out, nil
}

// statusOf maps a simplex error to a run status.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOptimal
	case errors.Is(err, lp.ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return StatusUnbounded
	default:
		return StatusNotSolved
	}
}

// clean snaps simplex round-off to zero so an exactly satisfied model reports zero slack.
func clean(v, tol float64) float64 {
	if math.Abs(v) <= zeroThreshold(tol) {
		return 0
	}
	return v
}

func zeroThreshold(tol float64) float64 {
	return math.Max(tol, 1e-9)
}
