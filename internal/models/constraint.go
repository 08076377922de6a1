// internal/models/constraint.go
package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Delimiters used in constraint keys and names. IDs within a group are joined with
// KeyDelimiter, the group and the kind are separated by NameDelimiter.
const (
	KeyDelimiter  = ";"
	NameDelimiter = ":"
)

var (
	ErrUnknownConstraintKind = errors.New("unknown constraint kind")
	ErrEmptyConstraintKey    = errors.New("constraint key has no nutrient ids")
)

// ConstraintKind is the relation a nutrient constraint imposes.
type ConstraintKind int

const (
	LowerBound ConstraintKind = iota + 1
	UpperBound
	Equality
)

// ConstraintKinds lists every kind in a stable order.
var ConstraintKinds = []ConstraintKind{LowerBound, UpperBound, Equality}

func (k ConstraintKind) String() string {
	switch k {
	case LowerBound:
		return "lower_bound"
	case UpperBound:
		return "upper_bound"
	case Equality:
		return "equality"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", int(k))
	}
}

// ParseConstraintKind returns false for anything outside the three known kinds.
func ParseConstraintKind(s string) (ConstraintKind, bool) {
	switch strings.TrimSpace(s) {
	case "lower_bound":
		return LowerBound, true
	case "upper_bound":
		return UpperBound, true
	case "equality":
		return Equality, true
	default:
		return 0, false
	}
}

func (k ConstraintKind) MarshalText() ([]byte, error) {
	if _, ok := ParseConstraintKind(k.String()); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownConstraintKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *ConstraintKind) UnmarshalText(text []byte) error {
	parsed, ok := ParseConstraintKind(string(text))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConstraintKind, string(text))
	}
	*k = parsed
	return nil
}

// ConstraintKey identifies the nutrient group a constraint bounds. It is the sorted,
// deduplicated list of nutrient IDs joined with KeyDelimiter, so (301, 305) and
// (305, 301) produce the same key.
type ConstraintKey string

// NewConstraintKey builds the canonical key for a set of nutrient IDs.
func NewConstraintKey(ids ...int) ConstraintKey {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		parts = append(parts, strconv.Itoa(id))
	}
	return ConstraintKey(strings.Join(parts, KeyDelimiter))
}

// ParseConstraintKey parses a delimiter-joined list like "301;305".
func ParseConstraintKey(s string) (ConstraintKey, error) {
	var ids []int
	for _, part := range strings.Split(s, KeyDelimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return "", fmt.Errorf("invalid nutrient id %q in key %q: %w", part, s, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: %q", ErrEmptyConstraintKey, s)
	}
	return NewConstraintKey(ids...), nil
}

// IDs returns the nutrient IDs in ascending order.
func (k ConstraintKey) IDs() []int {
	if k == "" {
		return nil
	}
	parts := strings.Split(string(k), KeyDelimiter)
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ConstraintName is the name a constraint row carries in a solved model, e.g. "301;305:lower_bound".
func ConstraintName(key ConstraintKey, kind ConstraintKind) string {
	return string(key) + NameDelimiter + kind.String()
}

// ParseConstraintName splits a name produced by ConstraintName.
func ParseConstraintName(name string) (ConstraintKey, ConstraintKind, error) {
	i := strings.LastIndex(name, NameDelimiter)
	if i < 0 {
		return "", 0, fmt.Errorf("constraint name %q has no kind", name)
	}
	key, err := ParseConstraintKey(name[:i])
	if err != nil {
		return "", 0, err
	}
	kind, ok := ParseConstraintKind(name[i+1:])
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownConstraintKind, name[i+1:])
	}
	return key, kind, nil
}

// NutrientConstraint bounds the weighted sum of a group of nutrients.
type NutrientConstraint struct {
	Name  string         `json:"constraint_name,omitempty"`
	Kind  ConstraintKind `json:"constraint_type"`
	Value float64        `json:"constraint_value"`

	// Coefficients maps nutrient ID to its weight in the sum.
	Coefficients map[int]float64 `json:"nbr_to_coefficient"`
}

// NewNutrientConstraint bounds the unweighted sum of the given nutrients.
func NewNutrientConstraint(kind ConstraintKind, value float64, nutrientIDs ...int) NutrientConstraint {
	coefficients := make(map[int]float64, len(nutrientIDs))
	for _, id := range nutrientIDs {
		coefficients[id] = 1
	}
	return NutrientConstraint{
		Kind:         kind,
		Value:        value,
		Coefficients: coefficients,
	}
}

// Key returns the nutrient group the constraint applies to.
func (c NutrientConstraint) Key() ConstraintKey {
	ids := make([]int, 0, len(c.Coefficients))
	for id := range c.Coefficients {
		ids = append(ids, id)
	}
	return NewConstraintKey(ids...)
}

// DisplayName returns Name, or a generated "<key> <kind> <value>" label.
func (c NutrientConstraint) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("%s %s %s", c.Key(), c.Kind, strconv.FormatFloat(c.Value, 'g', -1, 64))
}
