// internal/optimizer/run.go
package optimizer

import (
	"time"

	"github.com/google/uuid"

	"mcp-diet-opt/internal/models"
)

// Status is the solver outcome of a run. An optimal status alone does not mean the
// constraints were met; see Run.Feasible.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusNotSolved  Status = "not_solved"
)

// VariableKind tells food variables from slacks.
type VariableKind int

const (
	FoodVariable VariableKind = iota
	SlackUp
	SlackDown
)

// Variable is one solved model variable.
type Variable struct {
	Name  string       `json:"name"`
	Kind  VariableKind `json:"-"`
	Value float64      `json:"value"`

	FoodID     int64  `json:"food_id,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// ConstraintRow is one solved constraint. Coefficients are per nutrient, as in the source
// constraint.
type ConstraintRow struct {
	Name         string                `json:"name"`
	Key          models.ConstraintKey  `json:"key"`
	Kind         models.ConstraintKind `json:"kind"`
	Target       float64               `json:"target"`
	Coefficients map[int]float64       `json:"-"`
	ShadowPrice  float64               `json:"shadow_price"`
}

// FoodAmount is a selected food.
type FoodAmount struct {
	FoodID       int64   `json:"food_id"`
	Name         string  `json:"food_name"`
	Cost         float64 `json:"cost"`
	PricePer100g float64 `json:"price_per_100_g"`
	Grams        float64 `json:"amount_g"`
}

// ShadowPrice is the dual value of a constraint row.
type ShadowPrice struct {
	Constraint string                `json:"constraint"`
	Key        models.ConstraintKey  `json:"key"`
	Kind       models.ConstraintKind `json:"kind"`
	Value      float64               `json:"shadow_price"`
}

// Run is an immutable record of one optimization.
type Run struct {
	Index     int           `json:"run"`
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
	Status    Status        `json:"status"`
	Objective float64       `json:"objective"`

	Variables   []Variable      `json:"variables"`
	Constraints []ConstraintRow `json:"constraints"`

	// Foods is the snapshot the model was built from, overrides applied.
	Foods map[int64]*models.Food `json:"-"`

	hasDuals bool
}

// OptimalFoods returns every food with a nonzero amount, in ascending ID order.
func (r *Run) OptimalFoods() []FoodAmount {
	var out []FoodAmount
	for _, v := range r.Variables {
		if v.Kind != FoodVariable || v.Value == 0 {
			continue
		}
		food := r.Foods[v.FoodID]
		price, _ := food.Price()
		out = append(out, FoodAmount{
			FoodID:       v.FoodID,
			Name:         food.Name,
			Cost:         v.Value,
			PricePer100g: price,
			Grams:        v.Value / price * 100,
		})
	}
	return out
}

// HasShadowPrices reports whether the duals were recovered.
func (r *Run) HasShadowPrices() bool {
	return r.hasDuals
}

// ShadowPrices returns the dual value of every constraint row, or nil when the duals
// could not be recovered.
func (r *Run) ShadowPrices() []ShadowPrice {
	if !r.hasDuals {
		return nil
	}
	out := make([]ShadowPrice, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		out = append(out, ShadowPrice{Constraint: c.Name, Key: c.Key, Kind: c.Kind, Value: c.ShadowPrice})
	}
	return out
}

// SlackVariables returns both slacks of every row.
func (r *Run) SlackVariables() []Variable {
	var out []Variable
	for _, v := range r.Variables {
		if v.Kind != FoodVariable {
			out = append(out, v)
		}
	}
	return out
}

// OptimalValues maps every variable name to its value.
func (r *Run) OptimalValues() map[string]float64 {
	out := make(map[string]float64, len(r.Variables))
	for _, v := range r.Variables {
		out[v.Name] = v.Value
	}
	return out
}

// SlackTotal is the sum of all slack values.
func (r *Run) SlackTotal() float64 {
	var total float64
	for _, v := range r.Variables {
		if v.Kind != FoodVariable {
			total += v.Value
		}
	}
	return total
}

// Feasible reports whether the solve succeeded with every slack at zero, that is,
// whether the unslacked constraints were all met.
func (r *Run) Feasible() bool {
	if r.Status != StatusOptimal {
		return false
	}
	for _, v := range r.Variables {
		if v.Kind != FoodVariable && v.Value != 0 {
			return false
		}
	}
	return true
}

// TotalCost is the sum of the food variables.
func (r *Run) TotalCost() float64 {
	var total float64
	for _, v := range r.Variables {
		if v.Kind == FoodVariable {
			total += v.Value
		}
	}
	return total
}

// NutritionFacts sums each nutrient over the selected foods.
func (r *Run) NutritionFacts() map[int]float64 {
	out := make(map[int]float64)
	for _, f := range r.OptimalFoods() {
		for id, amount := range r.Foods[f.FoodID].Nutrition {
			out[id] += amount * f.Grams / 100
		}
	}
	return out
}

// Achieved evaluates a row's weighted nutrient sum against the selected foods, without slack.
func (r *Run) Achieved(c ConstraintRow) float64 {
	var total float64
	for _, f := range r.OptimalFoods() {
		food := r.Foods[f.FoodID]
		for id, weight := range c.Coefficients {
			total += weight * food.Nutrition[id] * f.Grams / 100
		}
	}
	return total
}

// newRun records a solved model. sol is nil when the solver failed.
func newRun(m *model, sol *solution, status Status) *Run {
	run := &Run{
		ID:     uuid.New(),
		Status: status,
	}
	for i, id := range m.foodIDs {
		v := Variable{Name: FoodVariableName(id), Kind: FoodVariable, FoodID: id}
		if sol != nil {
			v.Value = sol.food[i]
		}
		run.Variables = append(run.Variables, v)
	}
	for j, row := range m.rows {
		up := Variable{Name: SlackVariableName(row.name, true), Kind: SlackUp, Constraint: row.name}
		down := Variable{Name: SlackVariableName(row.name, false), Kind: SlackDown, Constraint: row.name}
		cr := ConstraintRow{
			Name:         row.name,
			Key:          row.source.Key(),
			Kind:         row.source.Kind,
			Target:       row.source.Value,
			Coefficients: row.source.Coefficients,
		}
		if sol != nil {
			up.Value, down.Value = sol.up[j], sol.down[j]
			if sol.duals != nil {
				cr.ShadowPrice = sol.duals[j]
			}
		}
		run.Variables = append(run.Variables, up, down)
		run.Constraints = append(run.Constraints, cr)
	}
	if sol != nil {
		run.Objective = sol.objective
		run.hasDuals = sol.duals != nil || len(m.rows) == 0
	}
	return run
}
