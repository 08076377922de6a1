// internal/models/restrictions.go
package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRestriction = errors.New("unknown dietary restriction")

// Restriction names a dietary restriction flag.
type Restriction string

const (
	Vegetarian        Restriction = "vegetarian"
	Vegan             Restriction = "vegan"
	GlutenFree        Restriction = "gluten_free"
	Kosher            Restriction = "kosher"
	Halal             Restriction = "halal"
	DairyFree         Restriction = "dairy_free"
	WheatFree         Restriction = "wheat_free"
	NutFree           Restriction = "nut_free"
	FishShellfishFree Restriction = "fish_shellfish_free"
	EggFree           Restriction = "egg_free"
	SoyFree           Restriction = "soy_free"
)

// AllRestrictions lists every flag in display order.
var AllRestrictions = []Restriction{
	Vegan, Vegetarian, Halal, Kosher, DairyFree, GlutenFree,
	SoyFree, WheatFree, EggFree, FishShellfishFree, NutFree,
}

// DisplayName returns the label shown to users.
func (r Restriction) DisplayName() string {
	switch r {
	case Vegan:
		return "Vegan"
	case Vegetarian:
		return "Vegetarian"
	case Halal:
		return "Halal"
	case Kosher:
		return "Kosher"
	case DairyFree:
		return "Dairy-Free"
	case GlutenFree:
		return "Gluten-Free"
	case SoyFree:
		return "Soy-Free"
	case WheatFree:
		return "Wheat-Free"
	case EggFree:
		return "Egg-Free"
	case FishShellfishFree:
		return "Fish/Shellfish-Free"
	case NutFree:
		return "Nut-Free"
	default:
		return string(r)
	}
}

// Restrictions holds tri-state flags: nil means unknown or not applicable.
type Restrictions struct {
	Vegetarian        *bool `json:"vegetarian"`
	Vegan             *bool `json:"vegan"`
	GlutenFree        *bool `json:"gluten_free"`
	Kosher            *bool `json:"kosher"`
	Halal             *bool `json:"halal"`
	DairyFree         *bool `json:"dairy_free"`
	WheatFree         *bool `json:"wheat_free"`
	NutFree           *bool `json:"nut_free"`
	FishShellfishFree *bool `json:"fish_shellfish_free"`
	EggFree           *bool `json:"egg_free"`
	SoyFree           *bool `json:"soy_free"`
}

func (r *Restrictions) field(name Restriction) **bool {
	switch name {
	case Vegetarian:
		return &r.Vegetarian
	case Vegan:
		return &r.Vegan
	case GlutenFree:
		return &r.GlutenFree
	case Kosher:
		return &r.Kosher
	case Halal:
		return &r.Halal
	case DairyFree:
		return &r.DairyFree
	case WheatFree:
		return &r.WheatFree
	case NutFree:
		return &r.NutFree
	case FishShellfishFree:
		return &r.FishShellfishFree
	case EggFree:
		return &r.EggFree
	case SoyFree:
		return &r.SoyFree
	default:
		return nil
	}
}

// Get returns the flag value; ok is false when the flag is unknown.
func (r Restrictions) Get(name Restriction) (value bool, ok bool) {
	p := r.field(name)
	if p == nil || *p == nil {
		return false, false
	}
	return **p, true
}

// Set assigns a flag. Unrecognized names are ignored and reported as false.
func (r *Restrictions) Set(name Restriction, value *bool) bool {
	p := r.field(name)
	if p == nil {
		return false
	}
	if value == nil {
		*p = nil
		return true
	}
	v := *value
	*p = &v
	return true
}

// Satisfies reports whether every required flag is explicitly true.
func (r Restrictions) Satisfies(required ...Restriction) bool {
	for _, name := range required {
		if v, ok := r.Get(name); !ok || !v {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no pointers with r.
func (r Restrictions) Clone() Restrictions {
	var c Restrictions
	for _, name := range AllRestrictions {
		c.Set(name, *r.field(name))
	}
	return c
}

// RestrictionsFromMap maps raw flag values onto Restrictions. Keys that are not
// restriction names are skipped.
func RestrictionsFromMap(raw map[string]*bool) Restrictions {
	var r Restrictions
	for key, value := range raw {
		r.Set(Restriction(key), value)
	}
	return r
}

// ParseRestriction accepts a flag name such as "gluten_free".
func ParseRestriction(s string) (Restriction, error) {
	r := Restriction(strings.ToLower(strings.TrimSpace(s)))
	var probe Restrictions
	if probe.field(r) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownRestriction, s)
	}
	return r, nil
}
