// internal/models/food.go
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnknownUnit = errors.New("unknown weight unit")

// Food is a catalog item. Amounts in Nutrition are per 100 g; absent IDs count as zero.
type Food struct {
	ID           int64           `json:"fdc_id"`
	Name         string          `json:"food_name"`
	PricePer100g *float64        `json:"price_per_100_g"`
	Nutrition    map[int]float64 `json:"food_nutrition"`
	Restrictions Restrictions    `json:"restrictions"`

	Description  string `json:"description,omitempty"`
	NutritionURL string `json:"nutrition_url,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// NewFood builds a food with a known price.
func NewFood(id int64, name string, pricePer100g float64, nutrition map[int]float64) *Food {
	return &Food{
		ID:           id,
		Name:         name,
		PricePer100g: &pricePer100g,
		Nutrition:    nutrition,
	}
}

// Price returns the price per 100 g and whether it is known.
func (f *Food) Price() (float64, bool) {
	if f.PricePer100g == nil {
		return 0, false
	}
	return *f.PricePer100g, true
}

// SetPrice assigns a known price per 100 g.
func (f *Food) SetPrice(pricePer100g float64) {
	f.PricePer100g = &pricePer100g
}

// NutrientAmount returns the amount per 100 g of a nutrient, zero when absent.
func (f *Food) NutrientAmount(nutrientID int) float64 {
	return f.Nutrition[nutrientID]
}

// Validate reports whether the food is well formed.
func (f *Food) Validate() error {
	if f.ID <= 0 {
		return fmt.Errorf("food id must be positive, got %d", f.ID)
	}
	if p, ok := f.Price(); ok {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("food %d: price per 100 g must be a non-negative number, got %v", f.ID, p)
		}
	}
	for id, amount := range f.Nutrition {
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return fmt.Errorf("food %d: nutrient %d amount is not finite", f.ID, id)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (f *Food) Clone() *Food {
	c := *f
	if f.PricePer100g != nil {
		p := *f.PricePer100g
		c.PricePer100g = &p
	}
	c.Nutrition = make(map[int]float64, len(f.Nutrition))
	for id, amount := range f.Nutrition {
		c.Nutrition[id] = amount
	}
	c.Restrictions = f.Restrictions.Clone()
	return &c
}

// WeightUnit is a unit a package weight can be given in.
type WeightUnit string

const (
	Gram      WeightUnit = "g"
	Kilogram  WeightUnit = "kg"
	Pound     WeightUnit = "lb"
	Ounce     WeightUnit = "oz"
	Milligram WeightUnit = "mg"
)

var gramsPerUnit = map[WeightUnit]float64{
	Gram:      1,
	Kilogram:  1000,
	Pound:     453.59237,
	Ounce:     28.349523125,
	Milligram: 0.001,
}

// ParseWeightUnit accepts the unit symbols case-insensitively.
func ParseWeightUnit(s string) (WeightUnit, error) {
	u := WeightUnit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := gramsPerUnit[u]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
	return u, nil
}

// Grams converts a weight in the unit to grams.
func (u WeightUnit) Grams(weight float64) (float64, error) {
	factor, ok := gramsPerUnit[u]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, string(u))
	}
	return weight * factor, nil
}

// PriceFromPurchase derives a price per 100 g from what a package costs and weighs.
func PriceFromPurchase(dollars, weight float64, unit WeightUnit) (float64, error) {
	if dollars < 0 {
		return 0, fmt.Errorf("price must be non-negative, got %v", dollars)
	}
	grams, err := unit.Grams(weight)
	if err != nil {
		return 0, err
	}
	if grams <= 0 {
		return 0, fmt.Errorf("weight must be positive, got %v %s", weight, unit)
	}
	return dollars / (grams / 100), nil
}
