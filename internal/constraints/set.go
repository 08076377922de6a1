// internal/constraints/set.go
package constraints

import (
	"errors"
	"fmt"

	"mcp-diet-opt/internal/models"
)

var (
	ErrConflictingKinds  = errors.New("equality cannot be combined with a bound on the same nutrients")
	ErrInvalidConstraint = errors.New("invalid constraint")
	ErrMalformedSource   = errors.New("malformed constraint source")
)

// Group is every constraint filed under one nutrient group.
type Group struct {
	Key         models.ConstraintKey
	Constraints map[models.ConstraintKind]models.NutrientConstraint
}

// Set files nutrient constraints by nutrient group and kind. A group holds at most one
// constraint per kind, and never an equality together with a bound.
type Set struct {
	groups map[models.ConstraintKey]map[models.ConstraintKind]models.NutrientConstraint
	order  []models.ConstraintKey
}

func NewSet() *Set {
	return &Set{groups: make(map[models.ConstraintKey]map[models.ConstraintKind]models.NutrientConstraint)}
}

// Add files c under its group, replacing a previous constraint of the same kind.
func (s *Set) Add(c models.NutrientConstraint) error {
	key := c.Key()
	if key == "" {
		return fmt.Errorf("%w: %v", ErrInvalidConstraint, models.ErrEmptyConstraintKey)
	}
	if _, ok := models.ParseConstraintKind(c.Kind.String()); !ok {
		return fmt.Errorf("%w: %v", ErrInvalidConstraint, models.ErrUnknownConstraintKind)
	}

	kinds, exists := s.groups[key]
	if exists {
		for existing := range kinds {
			if existing != c.Kind && (existing == models.Equality || c.Kind == models.Equality) {
				return fmt.Errorf("%w: %s has %s, cannot add %s", ErrConflictingKinds, key, existing, c.Kind)
			}
		}
	} else {
		kinds = make(map[models.ConstraintKind]models.NutrientConstraint)
		s.groups[key] = kinds
		s.order = append(s.order, key)
	}
	kinds[c.Kind] = cloneConstraint(c)
	return nil
}

// AddAll adds constraints in order and stops at the first error.
func (s *Set) AddAll(cs []models.NutrientConstraint) error {
	for _, c := range cs {
		if err := s.Add(c); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes one constraint; the group goes away with its last constraint.
func (s *Set) Remove(key models.ConstraintKey, kind models.ConstraintKind) {
	kinds, ok := s.groups[key]
	if !ok {
		return
	}
	delete(kinds, kind)
	if len(kinds) > 0 {
		return
	}
	delete(s.groups, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the constraint of a kind for a group.
func (s *Set) Get(key models.ConstraintKey, kind models.ConstraintKind) (models.NutrientConstraint, bool) {
	c, ok := s.groups[key][kind]
	if !ok {
		return models.NutrientConstraint{}, false
	}
	return cloneConstraint(c), true
}

// All returns the groups in the order they were first added.
func (s *Set) All() []Group {
	out := make([]Group, 0, len(s.order))
	for _, key := range s.order {
		kinds := make(map[models.ConstraintKind]models.NutrientConstraint, len(s.groups[key]))
		for kind, c := range s.groups[key] {
			kinds[kind] = cloneConstraint(c)
		}
		out = append(out, Group{Key: key, Constraints: kinds})
	}
	return out
}

// Constraints flattens the set: groups in insertion order, kinds in
// lower, upper, equality order.
func (s *Set) Constraints() []models.NutrientConstraint {
	var out []models.NutrientConstraint
	for _, key := range s.order {
		for _, kind := range models.ConstraintKinds {
			if c, ok := s.groups[key][kind]; ok {
				out = append(out, cloneConstraint(c))
			}
		}
	}
	return out
}

// Len returns the number of constraints, not groups.
func (s *Set) Len() int {
	n := 0
	for _, kinds := range s.groups {
		n += len(kinds)
	}
	return n
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := NewSet()
	for _, key := range s.order {
		kinds := make(map[models.ConstraintKind]models.NutrientConstraint, len(s.groups[key]))
		for kind, nc := range s.groups[key] {
			kinds[kind] = cloneConstraint(nc)
		}
		c.groups[key] = kinds
		c.order = append(c.order, key)
	}
	return c
}

func cloneConstraint(c models.NutrientConstraint) models.NutrientConstraint {
	coefficients := make(map[int]float64, len(c.Coefficients))
	for id, w := range c.Coefficients {
		coefficients[id] = w
	}
	c.Coefficients = coefficients
	return c
}
