// internal/models/demographic.go
package models

// Sex groups used by dietary reference intakes.
const (
	SexChild  = "child"
	SexFemale = "female"
	SexMale   = "male"
)

// AgeRanges lists the reference age ranges in ascending order.
var AgeRanges = []string{"1-3", "4-8", "9-13", "14-18", "19-30", "31-50", "51+"}

// Demographic selects a row of a multi-demographic constraint source.
type Demographic struct {
	Sex      string `json:"age_sex" yaml:"age_sex"`
	AgeRange string `json:"age_range" yaml:"age_range"`
}

// IsZero reports whether no demographic is set.
func (d Demographic) IsZero() bool {
	return d.Sex == "" && d.AgeRange == ""
}

// Matches reports whether d and other name the same group.
func (d Demographic) Matches(other Demographic) bool {
	return d.Sex == other.Sex && d.AgeRange == other.AgeRange
}

// Valid reports whether d is one of the reference groups. Children only have the 1-3 range.
func (d Demographic) Valid() bool {
	switch d.Sex {
	case SexChild:
		return d.AgeRange == "1-3"
	case SexFemale, SexMale:
		for _, r := range AgeRanges[1:] {
			if d.AgeRange == r {
				return true
			}
		}
	}
	return false
}

func (d Demographic) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Sex + " " + d.AgeRange
}
