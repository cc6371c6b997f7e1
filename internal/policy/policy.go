package policy

import (
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Policy is a validated, immutable rule table. Lookup is by element
// local name; rules carrying ancestor predicates take precedence over
// bare rules for the same element.
type Policy struct {
	fields []SensitiveField
	byTag  map[string][]int
}

// New validates the rule set and builds the match index.
func New(fields []SensitiveField) (*Policy, error) {
	for i, f := range fields {
		if f.Element == "" {
			return nil, &Error{Index: i, Reason: "element is required"}
		}
		if !f.Text && len(f.Attributes) == 0 {
			return nil, &Error{Index: i, Reason: fmt.Sprintf("element %q targets neither text nor attributes", f.Element)}
		}
		if !f.Category.Valid() {
			return nil, &Error{Index: i, Reason: fmt.Sprintf("unknown category %q", f.Category)}
		}
		for _, tag := range f.Within {
			if lo.Contains(f.NotWithin, tag) {
				return nil, &Error{Index: i, Reason: fmt.Sprintf("tag %q appears in both within and not_within", tag)}
			}
		}
		for j := 0; j < i; j++ {
			if overlaps(fields[j], f) {
				return nil, &Error{Index: i, Reason: fmt.Sprintf("duplicate rule for element %q (entry %d)", f.Element, j)}
			}
		}
	}

	p := &Policy{
		fields: fields,
		byTag:  make(map[string][]int),
	}
	for i, f := range fields {
		p.byTag[f.Element] = append(p.byTag[f.Element], i)
	}

	// Context-predicated rules match first; declaration order breaks ties.
	for _, idxs := range p.byTag {
		sort.SliceStable(idxs, func(a, b int) bool {
			return len(fields[idxs[a]].Within) > 0 && len(fields[idxs[b]].Within) == 0
		})
	}

	return p, nil
}

// overlaps reports whether two rules claim the same element parts under
// an identical context predicate.
func overlaps(a, b SensitiveField) bool {
	if a.Element != b.Element {
		return false
	}
	if !sameSet(a.Within, b.Within) || !sameSet(a.NotWithin, b.NotWithin) {
		return false
	}
	if a.Text && b.Text {
		return true
	}
	return lo.Some(a.Attributes, b.Attributes)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return lo.Every(a, b) && lo.Every(b, a)
}

// Match returns the rule matching an element and its ancestor context,
// or nil when the element is not sensitive. Ancestors are local names,
// immediate parent first.
func (p *Policy) Match(tag string, ancestors []string) *SensitiveField {
	for _, i := range p.byTag[tag] {
		f := &p.fields[i]
		if len(f.Within) > 0 && !lo.Some(ancestors, f.Within) {
			continue
		}
		if len(f.NotWithin) > 0 && lo.Some(ancestors, f.NotWithin) {
			continue
		}
		return f
	}
	return nil
}

// Fields returns a copy of the rule table.
func (p *Policy) Fields() []SensitiveField {
	out := make([]SensitiveField, len(p.fields))
	copy(out, p.fields)
	return out
}

// Categories returns the distinct categories the policy references.
func (p *Policy) Categories() []Category {
	return lo.Uniq(lo.Map(p.fields, func(f SensitiveField, _ int) Category {
		return f.Category
	}))
}

// policyFile is the YAML schema of a custom policy file.
type policyFile struct {
	Fields []SensitiveField `yaml:"fields"`
}

// LoadFile reads a custom rule table from a YAML file. Schema:
//
//	fields:
//	  - element: family
//	    text: true
//	    category: family_name
//	  - element: telecom
//	    attributes: [value]
//	    category: telecom
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(pf.Fields) == 0 {
		return nil, &Error{Index: 0, Reason: "policy file defines no fields"}
	}

	return New(pf.Fields)
}
