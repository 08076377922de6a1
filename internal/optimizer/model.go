// internal/optimizer/model.go
package optimizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mcp-diet-opt/internal/models"
)

// Variable name prefixes and slack direction suffixes.
const (
	foodPrefix  = "food" + models.NameDelimiter
	slackPrefix = "slack" + models.NameDelimiter
	slackUp     = "up"
	slackDown   = "down"
)

// FoodVariableName names the decision variable of a food, e.g. "food:1001".
func FoodVariableName(id int64) string {
	return foodPrefix + strconv.FormatInt(id, 10)
}

// ParseFoodVariableName returns the food ID encoded by FoodVariableName.
func ParseFoodVariableName(name string) (int64, bool) {
	if !strings.HasPrefix(name, foodPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(name, foodPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SlackVariableName names one of the two slacks of a constraint row,
// e.g. "slack:301;305:lower_bound:up".
func SlackVariableName(constraint string, up bool) string {
	dir := slackDown
	if up {
		dir = slackUp
	}
	return slackPrefix + constraint + models.NameDelimiter + dir
}

// ParseSlackVariableName splits a slack name into its constraint name and direction.
func ParseSlackVariableName(name string) (constraint string, up bool, ok bool) {
	if !strings.HasPrefix(name, slackPrefix) {
		return "", false, false
	}
	rest := strings.TrimPrefix(name, slackPrefix)
	i := strings.LastIndex(rest, models.NameDelimiter)
	if i < 0 {
		return "", false, false
	}
	switch rest[i+1:] {
	case slackUp:
		return rest[:i], true, true
	case slackDown:
		return rest[:i], false, true
	}
	return "", false, false
}

// row is one linear constraint of the model before conversion to standard form:
// sum(coef[f] * x[f]) + up - down (>=, <=, ==) target.
type row struct {
	name   string
	source models.NutrientConstraint
	coef   []float64 // per food, in model food order
}

// model is the slacked LP over a food snapshot.
type model struct {
	foodIDs []int64
	price   []float64
	lower   []float64 // lower bound per food variable, in cost units
	rows    []row
	penalty float64
}

// buildModel lays out one variable per food, in ascending ID order, and one row per
// constraint. Coefficients are nutrient amounts per unit of cost: amount per 100 g
// divided by price per 100 g. Nutrients a food does not list contribute zero.
func buildModel(foods map[int64]*models.Food, cs []models.NutrientConstraint, minGrams map[int64]float64, penalty float64) (*model, error) {
	m := &model{penalty: penalty}
	for id := range foods {
		m.foodIDs = append(m.foodIDs, id)
	}
	sort.Slice(m.foodIDs, func(i, j int) bool { return m.foodIDs[i] < m.foodIDs[j] })

	m.price = make([]float64, len(m.foodIDs))
	m.lower = make([]float64, len(m.foodIDs))
	for i, id := range m.foodIDs {
		p, ok := foods[id].Price()
		if !ok || p <= 0 {
			return nil, fmt.Errorf("%w: food %d", ErrInvalidPrice, id)
		}
		m.price[i] = p
		m.lower[i] = minGrams[id] * p / 100
	}

	for _, c := range cs {
		r := row{
			name:   models.ConstraintName(c.Key(), c.Kind),
			source: c,
			coef:   make([]float64, len(m.foodIDs)),
		}
		for i, id := range m.foodIDs {
			food := foods[id]
			var sum float64
			for nutrientID, weight := range c.Coefficients {
				amount, ok := food.Nutrition[nutrientID]
				if !ok {
					continue
				}
				sum += weight * amount
			}
			r.coef[i] = sum / m.price[i]
		}
		m.rows = append(m.rows, r)
	}
	return m, nil
}
