// internal/catalog/pantry.go
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"mcp-diet-opt/internal/models"
)

// Identity columns of the tabular pantry source. Every other named column is a nutrient ID.
const (
	ColumnPrice  = "price_per_100_g"
	ColumnName   = "food_name"
	ColumnFoodID = "fdc_id"
)

// Pantry holds every known food and the active subset eligible for optimization.
// It is not safe for concurrent use.
type Pantry struct {
	foods  map[int64]*models.Food
	active map[int64]struct{}
}

func NewPantry() *Pantry {
	return &Pantry{
		foods:  make(map[int64]*models.Food),
		active: make(map[int64]struct{}),
	}
}

// Add inserts or overwrites a food by ID and optionally marks it active.
func (p *Pantry) Add(food *models.Food, setActive bool) error {
	if food == nil {
		return fmt.Errorf("%w: nil food", ErrInvalidFood)
	}
	if err := food.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFood, err)
	}
	p.foods[food.ID] = food.Clone()
	if setActive {
		p.active[food.ID] = struct{}{}
	}
	return nil
}

// Get returns a copy of the food. Unknown IDs are an error.
func (p *Pantry) Get(id int64) (*models.Food, error) {
	food, ok := p.foods[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFoodNotFound, id)
	}
	return food.Clone(), nil
}

// Has reports whether the food is in the catalog.
func (p *Pantry) Has(id int64) bool {
	_, ok := p.foods[id]
	return ok
}

// SetActive replaces the active set. If any ID is unknown the active set is left unchanged.
func (p *Pantry) SetActive(ids ...int64) error {
	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := p.foods[id]; !ok {
			return fmt.Errorf("%w: %d", ErrFoodNotFound, id)
		}
		next[id] = struct{}{}
	}
	p.active = next
	return nil
}

// IsActive reports whether the food is in the active set.
func (p *Pantry) IsActive(id int64) bool {
	_, ok := p.active[id]
	return ok
}

// Active returns copies of the active foods keyed by ID.
func (p *Pantry) Active() map[int64]*models.Food {
	out := make(map[int64]*models.Food, len(p.active))
	for id := range p.active {
		out[id] = p.foods[id].Clone()
	}
	return out
}

// ActiveIDs returns the active IDs in ascending order.
func (p *Pantry) ActiveIDs() []int64 {
	return sortedIDs(p.active)
}

// IDs returns every catalog ID in ascending order.
func (p *Pantry) IDs() []int64 {
	ids := make([]int64, 0, len(p.foods))
	for id := range p.foods {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Pantry) Len() int {
	return len(p.foods)
}

// SetPrice reassigns a food's price per 100 g.
func (p *Pantry) SetPrice(id int64, pricePer100g float64) error {
	food, ok := p.foods[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrFoodNotFound, id)
	}
	if pricePer100g < 0 || math.IsNaN(pricePer100g) || math.IsInf(pricePer100g, 0) {
		return fmt.Errorf("%w: price per 100 g must be a non-negative number, got %v", ErrInvalidFood, pricePer100g)
	}
	food.SetPrice(pricePer100g)
	return nil
}

// ApplyRestrictions drops from the active set every food whose required flags are not
// all explicitly true, and returns the dropped IDs in ascending order.
func (p *Pantry) ApplyRestrictions(required ...models.Restriction) []int64 {
	removed := make(map[int64]struct{})
	for id := range p.active {
		if !p.foods[id].Restrictions.Satisfies(required...) {
			removed[id] = struct{}{}
		}
	}
	for id := range removed {
		delete(p.active, id)
	}
	return sortedIDs(removed)
}

// LoadCSV reads one food per row. Identity columns are fdc_id, food_name and
// price_per_100_g; every other column header must be a nutrient ID. Columns with an
// empty header (a leading row index) are ignored, and empty cells are absent nutrients.
// An empty price cell leaves the price unknown. Nothing is added if any row is malformed.
func (p *Pantry) LoadCSV(r io.Reader, setActive bool) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%w: read pantry header: %v", ErrMalformedSource, err)
	}

	cols := columnIndex(header)
	idCol, ok := cols[ColumnFoodID]
	if !ok {
		return fmt.Errorf("%w: missing %s column", ErrMalformedSource, ColumnFoodID)
	}
	nutrientCols := make(map[int]int)
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch name {
		case "", ColumnFoodID, ColumnName, ColumnPrice:
			continue
		}
		nutrientID, err := strconv.Atoi(name)
		if err != nil {
			return fmt.Errorf("%w: column %q is not a nutrient id", ErrMalformedSource, name)
		}
		nutrientCols[i] = nutrientID
	}

	seen := make(map[int64]bool)
	var foods []*models.Food
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformedSource, line, err)
		}

		id, err := strconv.ParseInt(strings.TrimSpace(row[idCol]), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: line %d: fdc_id %q: %v", ErrMalformedSource, line, row[idCol], err)
		}
		if seen[id] {
			return fmt.Errorf("%w: food %d", ErrDuplicateID, id)
		}
		seen[id] = true

		food := &models.Food{ID: id, Nutrition: make(map[int]float64, len(nutrientCols))}
		if i, ok := cols[ColumnName]; ok {
			food.Name = row[i]
		}
		if i, ok := cols[ColumnPrice]; ok {
			if cell := strings.TrimSpace(row[i]); cell != "" {
				price, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return fmt.Errorf("%w: line %d: price %q: %v", ErrMalformedSource, line, cell, err)
				}
				food.SetPrice(price)
			}
		}
		for i, nutrientID := range nutrientCols {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			amount, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return fmt.Errorf("%w: line %d: nutrient %d amount %q: %v", ErrMalformedSource, line, nutrientID, cell, err)
			}
			food.Nutrition[nutrientID] = amount
		}
		if err := food.Validate(); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformedSource, line, err)
		}
		foods = append(foods, food)
	}

	return p.addAll(foods, setActive)
}

type foodRecord struct {
	Name         string             `json:"food_name"`
	PricePer100g *float64           `json:"price_per_100_g"`
	Nutrition    map[string]float64 `json:"food_nutrition"`
	Restrictions map[string]*bool   `json:"restrictions"`
	Description  string             `json:"description"`
	NutritionURL string             `json:"nutrition_url"`
	ImageURL     string             `json:"image_url"`
}

// LoadJSON reads an object keyed by food ID:
//
//	{"12345": {"food_name": "Rice", "price_per_100_g": 0.2,
//	           "food_nutrition": {"208": 130}, "restrictions": {"vegan": true}}}
//
// Nothing is added if any entry is malformed.
func (p *Pantry) LoadJSON(r io.Reader, setActive bool) error {
	var raw map[string]foodRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("%w: decode pantry: %v", ErrMalformedSource, err)
	}

	foods := make([]*models.Food, 0, len(raw))
	for key, rec := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: food id %q: %v", ErrMalformedSource, key, err)
		}
		food := &models.Food{
			ID:           id,
			Name:         rec.Name,
			PricePer100g: rec.PricePer100g,
			Nutrition:    make(map[int]float64, len(rec.Nutrition)),
			Restrictions: models.RestrictionsFromMap(rec.Restrictions),
			Description:  rec.Description,
			NutritionURL: rec.NutritionURL,
			ImageURL:     rec.ImageURL,
		}
		for nbr, amount := range rec.Nutrition {
			nutrientID, err := strconv.Atoi(strings.TrimSpace(nbr))
			if err != nil {
				return fmt.Errorf("%w: food %d: nutrient id %q: %v", ErrMalformedSource, id, nbr, err)
			}
			food.Nutrition[nutrientID] = amount
		}
		if err := food.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		foods = append(foods, food)
	}

	return p.addAll(foods, setActive)
}

func (p *Pantry) addAll(foods []*models.Food, setActive bool) error {
	for _, food := range foods {
		if err := p.Add(food, setActive); err != nil {
			return err
		}
	}
	return nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
