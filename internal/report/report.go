// internal/report/report.go
package report

import (
	"math"
	"sort"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/models"
	"mcp-diet-opt/internal/optimizer"
)

// DefaultTolerance is the slack allowed when checking a solved constraint.
const DefaultTolerance = 1e-6

// Summary is the headline of a run.
type Summary struct {
	Run        int              `json:"run"`
	ID         string           `json:"id"`
	Status     optimizer.Status `json:"status"`
	Feasible   bool             `json:"feasible"`
	TotalCost  float64          `json:"total_cost"`
	NumFoods   int              `json:"num_foods"`
	Objective  float64          `json:"objective"`
	SlackTotal float64          `json:"slack_total"`
}

// NutrientTotal is one line of the nutrition facts.
type NutrientTotal struct {
	NutrientID int     `json:"nutrient_nbr"`
	Name       string  `json:"nutrient_name"`
	Unit       string  `json:"unit_name"`
	Amount     float64 `json:"amount"`
}

// SlackRow is a nonzero slack: how far, and in which direction, a constraint was missed.
type SlackRow struct {
	Variable   string  `json:"variable"`
	Constraint string  `json:"constraint"`
	Nutrients  string  `json:"nutrients"`
	Kind       string  `json:"kind"`
	Direction  string  `json:"direction"`
	Value      float64 `json:"value"`
}

type ShadowPriceRow struct {
	Constraint string  `json:"constraint"`
	Nutrients  string  `json:"nutrients"`
	Kind       string  `json:"kind"`
	Target     float64 `json:"target"`
	Value      float64 `json:"shadow_price"`
}

// ConstraintCheck compares a constraint's target with what the selected foods deliver.
type ConstraintCheck struct {
	Constraint string  `json:"constraint"`
	Nutrients  string  `json:"nutrients"`
	Kind       string  `json:"kind"`
	Target     float64 `json:"target"`
	Achieved   float64 `json:"achieved"`
	Satisfied  bool    `json:"satisfied"`
}

// Report is the full projection of a run.
type Report struct {
	Summary      Summary                `json:"summary"`
	Foods        []optimizer.FoodAmount `json:"foods"`
	Nutrition    []NutrientTotal        `json:"nutrition"`
	Diagnostics  []SlackRow             `json:"diagnostics"`
	ShadowPrices []ShadowPriceRow       `json:"shadow_prices"`
	Checks       []ConstraintCheck      `json:"checks"`
}

// Build projects every view of a run. Zero shadow prices are left out unless showAll.
func Build(run *optimizer.Run, nutrients *catalog.NutrientCatalog, showAll bool) *Report {
	return &Report{
		Summary:      Summarize(run),
		Foods:        run.OptimalFoods(),
		Nutrition:    NutritionFacts(run, nutrients),
		Diagnostics:  Diagnostics(run, nutrients),
		ShadowPrices: ShadowPrices(run, nutrients, showAll),
		Checks:       CheckConstraints(run, nutrients, DefaultTolerance),
	}
}

func Summarize(run *optimizer.Run) Summary {
	return Summary{
		Run:        run.Index,
		ID:         run.ID.String(),
		Status:     run.Status,
		Feasible:   run.Feasible(),
		TotalCost:  run.TotalCost(),
		NumFoods:   len(run.OptimalFoods()),
		Objective:  run.Objective,
		SlackTotal: run.SlackTotal(),
	}
}

// NutritionFacts totals every nutrient delivered by the selected foods, by nutrient ID.
func NutritionFacts(run *optimizer.Run, nutrients *catalog.NutrientCatalog) []NutrientTotal {
	totals := run.NutritionFacts()
	out := make([]NutrientTotal, 0, len(totals))
	for id, amount := range totals {
		out = append(out, NutrientTotal{
			NutrientID: id,
			Name:       nutrients.Name(id),
			Unit:       nutrients.Unit(id),
			Amount:     amount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NutrientID < out[j].NutrientID })
	return out
}

// Diagnostics lists the nonzero slacks. An empty result on an optimal run means every
// constraint was met.
func Diagnostics(run *optimizer.Run, nutrients *catalog.NutrientCatalog) []SlackRow {
	var out []SlackRow
	for _, v := range run.SlackVariables() {
		if v.Value == 0 {
			continue
		}
		row := SlackRow{
			Variable:   v.Name,
			Constraint: v.Constraint,
			Direction:  "down",
			Value:      v.Value,
		}
		if v.Kind == optimizer.SlackUp {
			row.Direction = "up"
		}
		if key, kind, err := models.ParseConstraintName(v.Constraint); err == nil {
			row.Nutrients = nutrients.GroupName(key)
			row.Kind = kind.String()
		}
		out = append(out, row)
	}
	return out
}

// ShadowPrices lists constraint duals, dropping zeros unless showAll.
func ShadowPrices(run *optimizer.Run, nutrients *catalog.NutrientCatalog, showAll bool) []ShadowPriceRow {
	if !run.HasShadowPrices() {
		return nil
	}
	var out []ShadowPriceRow
	for _, c := range run.Constraints {
		if c.ShadowPrice == 0 && !showAll {
			continue
		}
		out = append(out, ShadowPriceRow{
			Constraint: c.Name,
			Nutrients:  nutrients.GroupName(c.Key),
			Kind:       c.Kind.String(),
			Target:     c.Target,
			Value:      c.ShadowPrice,
		})
	}
	return out
}

// CheckConstraints evaluates every constraint against the selected foods, ignoring
// slack. tol is relative to the target's magnitude, with an absolute floor of tol.
func CheckConstraints(run *optimizer.Run, nutrients *catalog.NutrientCatalog, tol float64) []ConstraintCheck {
	out := make([]ConstraintCheck, 0, len(run.Constraints))
	for _, c := range run.Constraints {
		achieved := run.Achieved(c)
		margin := tol * math.Max(1, math.Abs(c.Target))

		var ok bool
		switch c.Kind {
		case models.LowerBound:
			ok = achieved >= c.Target-margin
		case models.UpperBound:
			ok = achieved <= c.Target+margin
		case models.Equality:
			ok = math.Abs(achieved-c.Target) <= margin
		}
		out = append(out, ConstraintCheck{
			Constraint: c.Name,
			Nutrients:  nutrients.GroupName(c.Key),
			Kind:       c.Kind.String(),
			Target:     c.Target,
			Achieved:   achieved,
			Satisfied:  ok,
		})
	}
	return out
}
