// internal/catalog/nutrients.go
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"mcp-diet-opt/internal/models"
)

// UnknownNutrientName is shown for nutrient IDs missing from the catalog.
const UnknownNutrientName = "unknown nutrient"

// csvUnitNames maps the upper-case unit codes used by nutrient CSV exports.
var csvUnitNames = map[string]string{
	"G":  "g",
	"MG": "mg",
	"UG": "ug",
}

// NutrientCatalog maps nutrient IDs to names and units. Lookups of unknown IDs
// return ok=false rather than an error.
type NutrientCatalog struct {
	nutrients map[int]models.Nutrient
}

func NewNutrientCatalog() *NutrientCatalog {
	return &NutrientCatalog{nutrients: make(map[int]models.Nutrient)}
}

// Add inserts or replaces a nutrient.
func (c *NutrientCatalog) Add(n models.Nutrient) {
	c.nutrients[n.ID] = n
}

func (c *NutrientCatalog) Remove(id int) {
	delete(c.nutrients, id)
}

// Get returns the nutrient and whether it is known.
func (c *NutrientCatalog) Get(id int) (models.Nutrient, bool) {
	n, ok := c.nutrients[id]
	return n, ok
}

// Name returns the display name, or UnknownNutrientName.
func (c *NutrientCatalog) Name(id int) string {
	if n, ok := c.nutrients[id]; ok {
		return n.Name
	}
	return UnknownNutrientName
}

// Unit returns the unit, or an empty string for unknown IDs.
func (c *NutrientCatalog) Unit(id int) string {
	return c.nutrients[id].Unit
}

// GroupName joins the names of a constraint key's nutrients with " + ".
// Unknown IDs are left out; a key with no known IDs yields UnknownNutrientName.
func (c *NutrientCatalog) GroupName(key models.ConstraintKey) string {
	var names []string
	for _, id := range key.IDs() {
		if n, ok := c.nutrients[id]; ok {
			names = append(names, n.Name)
		}
	}
	if len(names) == 0 {
		return UnknownNutrientName
	}
	return strings.Join(names, " + ")
}

// All returns every nutrient ordered by ID.
func (c *NutrientCatalog) All() []models.Nutrient {
	out := make([]models.Nutrient, 0, len(c.nutrients))
	for _, n := range c.nutrients {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *NutrientCatalog) Len() int {
	return len(c.nutrients)
}

// DefaultConstraints collects the RDA constraints of one category (e.g. "default")
// as single-nutrient constraints, ordered by nutrient ID then kind.
func (c *NutrientCatalog) DefaultConstraints(category string) []models.NutrientConstraint {
	var out []models.NutrientConstraint
	for _, n := range c.All() {
		rdas, ok := n.RDAs[category]
		if !ok {
			continue
		}
		for _, kind := range models.ConstraintKinds {
			if value, ok := rdas[kind]; ok {
				out = append(out, models.NewNutrientConstraint(kind, value, n.ID))
			}
		}
	}
	return out
}

type nutrientRecord struct {
	Name string                        `json:"nutrient_name"`
	Unit string                        `json:"unit_name"`
	RDAs map[string]map[string]float64 `json:"nutrient_rdas"`
}

// LoadJSON reads an object keyed by nutrient ID:
//
//	{"208": {"nutrient_name": "Energy", "unit_name": "kcal",
//	         "nutrient_rdas": {"default": {"lower_bound": 2000}}}}
//
// Unrecognized RDA kinds are skipped. Nothing is added if the source is malformed.
func (c *NutrientCatalog) LoadJSON(r io.Reader) error {
	var raw map[string]nutrientRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("%w: decode nutrients: %v", ErrMalformedSource, err)
	}

	loaded := make([]models.Nutrient, 0, len(raw))
	for key, rec := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return fmt.Errorf("%w: nutrient id %q: %v", ErrMalformedSource, key, err)
		}
		n := models.Nutrient{ID: id, Name: rec.Name, Unit: rec.Unit}
		if len(rec.RDAs) > 0 {
			n.RDAs = make(map[string]map[models.ConstraintKind]float64, len(rec.RDAs))
			for category, values := range rec.RDAs {
				kinds := make(map[models.ConstraintKind]float64, len(values))
				for name, value := range values {
					if kind, ok := models.ParseConstraintKind(name); ok {
						kinds[kind] = value
					}
				}
				n.RDAs[category] = kinds
			}
		}
		loaded = append(loaded, n)
	}

	for _, n := range loaded {
		c.Add(n)
	}
	return nil
}

// LoadCSV reads rows of nutrient_nbr,nutrient_name,unit_name with a header line.
// IDs must be unique within the file.
func (c *NutrientCatalog) LoadCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%w: read nutrient header: %v", ErrMalformedSource, err)
	}
	cols := columnIndex(header)
	idCol, ok := cols["nutrient_nbr"]
	if !ok {
		return fmt.Errorf("%w: missing nutrient_nbr column", ErrMalformedSource)
	}
	nameCol, hasName := cols["nutrient_name"]
	unitCol, hasUnit := cols["unit_name"]

	seen := make(map[int]bool)
	var loaded []models.Nutrient
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read nutrient row: %v", ErrMalformedSource, err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(row[idCol]))
		if err != nil {
			return fmt.Errorf("%w: nutrient_nbr %q: %v", ErrMalformedSource, row[idCol], err)
		}
		if seen[id] {
			return fmt.Errorf("%w: nutrient %d", ErrDuplicateID, id)
		}
		seen[id] = true

		n := models.Nutrient{ID: id}
		if hasName {
			n.Name = row[nameCol]
		}
		if hasUnit {
			n.Unit = normalizeUnit(row[unitCol])
		}
		loaded = append(loaded, n)
	}

	for _, n := range loaded {
		c.Add(n)
	}
	return nil
}

func normalizeUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if mapped, ok := csvUnitNames[strings.ToUpper(unit)]; ok {
		return mapped
	}
	return strings.ToLower(unit)
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}
