// internal/constraints/load.go
package constraints

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mcp-diet-opt/internal/models"
)

// Entry is one nutrient-group definition in a constraint source. Constraints maps a
// kind name to its target; names other than lower_bound, upper_bound and equality are
// ignored. Entries with a demographic are only loaded for a matching filter.
type Entry struct {
	NutrientNbrs string             `json:"nutrient_nbrs" yaml:"nutrient_nbrs"`
	Name         string             `json:"constraint_name,omitempty" yaml:"constraint_name,omitempty"`
	Unit         string             `json:"unit_name,omitempty" yaml:"unit_name,omitempty"`
	Sex          string             `json:"age_sex,omitempty" yaml:"age_sex,omitempty"`
	AgeRange     string             `json:"age_range,omitempty" yaml:"age_range,omitempty"`
	Constraints  map[string]float64 `json:"constraints" yaml:"constraints"`
}

func (e Entry) demographic() models.Demographic {
	return models.Demographic{Sex: e.Sex, AgeRange: e.AgeRange}
}

// LoadEntries adds the entries to the set. An entry with a demographic is skipped
// unless filter is non-nil and matches it. The set is unchanged if any entry fails.
func (s *Set) LoadEntries(entries []Entry, filter *models.Demographic) error {
	next := s.Clone()
	for _, e := range entries {
		if d := e.demographic(); !d.IsZero() && (filter == nil || !filter.Matches(d)) {
			continue
		}
		key, err := models.ParseConstraintKey(e.NutrientNbrs)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		ids := key.IDs()

		kindNames := make([]string, 0, len(e.Constraints))
		for name := range e.Constraints {
			kindNames = append(kindNames, name)
		}
		sort.Strings(kindNames)

		for _, name := range kindNames {
			kind, ok := models.ParseConstraintKind(name)
			if !ok {
				continue
			}
			c := models.NewNutrientConstraint(kind, e.Constraints[name], ids...)
			c.Name = e.Name
			if err := next.Add(c); err != nil {
				return err
			}
		}
	}
	*s = *next
	return nil
}

// LoadJSON adds the constraints of a JSON source; see ReadJSON.
func (s *Set) LoadJSON(r io.Reader, filter *models.Demographic) error {
	entries, err := ReadJSON(r)
	if err != nil {
		return err
	}
	return s.LoadEntries(entries, filter)
}

// LoadYAML adds the constraints of a YAML source; see ReadYAML.
func (s *Set) LoadYAML(r io.Reader, filter *models.Demographic) error {
	entries, err := ReadYAML(r)
	if err != nil {
		return err
	}
	return s.LoadEntries(entries, filter)
}

// LoadCSV adds the constraints of a CSV source; see ReadCSV.
func (s *Set) LoadCSV(r io.Reader, filter *models.Demographic) error {
	entries, err := ReadCSV(r)
	if err != nil {
		return err
	}
	return s.LoadEntries(entries, filter)
}

// ReadJSON accepts either an object keyed by nutrient group,
//
//	{"301;305": {"constraints": {"lower_bound": 1000, "upper_bound": 2500}}}
//
// or a list of entries carrying their own nutrient_nbrs and optional age_sex/age_range.
func ReadJSON(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}
	data = bytes.TrimSpace(data)

	var entries []Entry
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		return entries, nil
	}
	var keyed map[string]Entry
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	return keyedEntries(keyed), nil
}

// ReadYAML accepts the same two shapes as ReadJSON. An empty document has no entries.
func ReadYAML(r io.Reader) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	switch doc.Kind {
	case yaml.SequenceNode:
		var entries []Entry
		if err := doc.Decode(&entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		return entries, nil
	case yaml.MappingNode:
		var keyed map[string]Entry
		if err := doc.Decode(&keyed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
		}
		return keyedEntries(keyed), nil
	default:
		return nil, fmt.Errorf("%w: expected a mapping or a sequence", ErrMalformedSource)
	}
}

// ReadCSV reads rows of nutrient_nbrs,constraint_name,unit_name,constraint_type,constraint_value
// with optional age_sex and age_range columns. Each row becomes one entry.
func ReadCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedSource, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"nutrient_nbrs", "constraint_type", "constraint_value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s column", ErrMalformedSource, required)
		}
	}
	cell := func(row []string, name string) string {
		if i, ok := cols[name]; ok {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var entries []Entry
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSource, line, err)
		}
		raw := cell(row, "constraint_value")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: constraint_value %q: %v", ErrMalformedSource, line, raw, err)
		}
		e := Entry{
			NutrientNbrs: cell(row, "nutrient_nbrs"),
			Name:         cell(row, "constraint_name"),
			Unit:         cell(row, "unit_name"),
			Sex:          cell(row, "age_sex"),
			AgeRange:     cell(row, "age_range"),
			Constraints:  map[string]float64{cell(row, "constraint_type"): value},
		}
		if e.Name == "" {
			e.Name = e.NutrientNbrs + " " + cell(row, "constraint_type") + " " + raw
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReadFile reads a constraint source, choosing the format by extension:
// .json, .yaml/.yml or .csv.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open constraints: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadJSON(f)
	case ".yaml", ".yml":
		return ReadYAML(f)
	case ".csv":
		return ReadCSV(f)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrMalformedSource, filepath.Ext(path))
	}
}

// keyedEntries turns a group-keyed object into entries ordered by key.
func keyedEntries(keyed map[string]Entry) []Entry {
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e := keyed[k]
		e.NutrientNbrs = k
		entries = append(entries, e)
	}
	return entries
}
