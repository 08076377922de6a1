// internal/models/nutrient.go
package models

// Nutrient is a catalog entry for a nutrient number such as 208 (energy) or 307 (sodium).
type Nutrient struct {
	ID   int    `json:"nutrient_id"`
	Name string `json:"nutrient_name"`
	Unit string `json:"unit_name"`

	// RDAs maps a category (e.g. "default") to constraint kind -> target value.
	RDAs map[string]map[ConstraintKind]float64 `json:"nutrient_rdas,omitempty"`
}
