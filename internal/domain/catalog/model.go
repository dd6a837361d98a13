package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TestDefinition is an administered lab test. Its Schema describes the
// sections and fields a technician fills in when entering results, and is
// the source of truth for labels, units and reference ranges attached to
// flattened result values.
type TestDefinition struct {
	ID        uuid.UUID   `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Active    bool        `json:"active"`
	Schema    FieldSchema `json:"schema"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FieldSchema is the ordered section/field layout of one test. Section and
// field keys are used verbatim as path segments in flattened result values,
// so they must not contain the path separator.
type FieldSchema struct {
	Sections []Section `json:"sections"`
}

type Section struct {
	Key    string  `json:"key"`
	Label  string  `json:"label,omitempty"`
	Fields []Field `json:"fields"`
}

type Field struct {
	Key       string     `json:"key"`
	Label     string     `json:"label,omitempty"`
	Unit      string     `json:"unit,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Range     *RangeSpec `json:"range,omitempty"`
	Min       *float64   `json:"min,omitempty"`
	Max       *float64   `json:"max,omitempty"`
}

// PathSeparator joins section and field keys into parameter paths.
const PathSeparator = "."

// rangeForm discriminates the three accepted JSON shapes of a RangeSpec.
type rangeForm int

const (
	rangeText rangeForm = iota
	rangePair
	rangeObject
)

// RangeSpec is the reference-range descriptor of a field. It accepts three
// JSON shapes: a free-text string ("4.0 - 11.0"), a two-element [min, max]
// pair, or a {"min": .., "max": ..} object. Either bound may be absent.
type RangeSpec struct {
	Text string
	Min  *float64
	Max  *float64

	form rangeForm
}

// numeric reports whether the range carries at least one numeric bound.
func (r *RangeSpec) numeric() bool {
	return r.form != rangeText && (r.Min != nil || r.Max != nil)
}

func (r *RangeSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = s
		r.form = rangeText
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("range pair must have exactly 2 elements, got %d", len(pair))
		}
		r.Min = parseBound(pair[0])
		r.Max = parseBound(pair[1])
		r.form = rangePair
		return nil
	}

	var obj struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("range must be a string, a [min,max] pair, or a {min,max} object")
	}
	r.Min = obj.Min
	r.Max = obj.Max
	r.form = rangeObject
	return nil
}

func (r *RangeSpec) MarshalJSON() ([]byte, error) {
	switch r.form {
	case rangeText:
		return json.Marshal(r.Text)
	case rangePair:
		return json.Marshal([2]*float64{r.Min, r.Max})
	default:
		return json.Marshal(struct {
			Min *float64 `json:"min,omitempty"`
			Max *float64 `json:"max,omitempty"`
		}{r.Min, r.Max})
	}
}

// parseBound reads one pair element as a number, tolerating numeric strings
// and treating null or anything non-numeric as an absent bound.
func parseBound(raw json.RawMessage) *float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	return nil
}

// Validate checks schema keys: non-empty, unique within their parent, and
// free of the path separator so flattened paths stay unambiguous.
func (s FieldSchema) Validate() error {
	sectionKeys := make(map[string]bool, len(s.Sections))
	for _, sec := range s.Sections {
		if err := validateKey("section", sec.Key); err != nil {
			return err
		}
		if sectionKeys[sec.Key] {
			return fmt.Errorf("duplicate section key %q", sec.Key)
		}
		sectionKeys[sec.Key] = true

		fieldKeys := make(map[string]bool, len(sec.Fields))
		for _, f := range sec.Fields {
			if err := validateKey("field", f.Key); err != nil {
				return err
			}
			if fieldKeys[f.Key] {
				return fmt.Errorf("duplicate field key %q in section %q", f.Key, sec.Key)
			}
			fieldKeys[f.Key] = true
		}
	}
	return nil
}

func validateKey(kind, key string) error {
	if key == "" {
		return fmt.Errorf("%s key is required", kind)
	}
	if strings.Contains(key, PathSeparator) {
		return fmt.Errorf("%s key %q must not contain %q", kind, key, PathSeparator)
	}
	return nil
}

// field looks up a field by section and field key. Lookup is a linear scan;
// schemas are small and order matters for display.
func (s FieldSchema) field(sectionKey, fieldKey string) *Field {
	for i := range s.Sections {
		if s.Sections[i].Key != sectionKey {
			continue
		}
		for j := range s.Sections[i].Fields {
			if s.Sections[i].Fields[j].Key == fieldKey {
				return &s.Sections[i].Fields[j]
			}
		}
		return nil
	}
	return nil
}

// Resolved is the schema metadata attached to one flattened parameter.
// Every member is independently nullable; an unknown path resolves to the
// zero value so the raw reading is stored without metadata rather than
// dropped.
type Resolved struct {
	Label         *string
	Unit          *string
	ReferenceText *string
	ReferenceMin  *float64
	ReferenceMax  *float64
}

// ResolveReference maps a dotted parameter path to its schema metadata.
// The first path segment is the section key and the second the field key;
// paths with fewer than two segments or no matching field resolve to all
// nulls. Reference precedence: an explicit textual reference wins, else a
// numeric range fills the bounds, else a textual range is used as text.
// Explicit min/max keys on the field fill only bounds left unset.
func (s FieldSchema) ResolveReference(path string) Resolved {
	var res Resolved

	segments := strings.SplitN(path, PathSeparator, 3)
	if len(segments) < 2 {
		return res
	}
	f := s.field(segments[0], segments[1])
	if f == nil {
		return res
	}

	if f.Label != "" {
		label := f.Label
		res.Label = &label
	}
	if f.Unit != "" {
		unit := f.Unit
		res.Unit = &unit
	}

	switch {
	case f.Reference != "":
		text := f.Reference
		res.ReferenceText = &text
	case f.Range != nil && f.Range.numeric():
		res.ReferenceMin = f.Range.Min
		res.ReferenceMax = f.Range.Max
	case f.Range != nil && f.Range.Text != "":
		text := f.Range.Text
		res.ReferenceText = &text
	}

	if res.ReferenceMin == nil && f.Min != nil {
		res.ReferenceMin = f.Min
	}
	if res.ReferenceMax == nil && f.Max != nil {
		res.ReferenceMax = f.Max
	}

	return res
}
