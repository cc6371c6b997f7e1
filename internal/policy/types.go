package policy

import "fmt"

// Category tags a kind of sensitive data and selects the generator that
// supplies its replacements.
type Category string

const (
	GivenName    Category = "given_name"
	FamilyName   Category = "family_name"
	NamePrefix   Category = "name_prefix"
	NameSuffix   Category = "name_suffix"
	PersonName   Category = "person_name"
	Organization Category = "organization"
	Street       Category = "street"
	City         Category = "city"
	County       Category = "county"
	State        Category = "state"
	Country      Category = "country"
	PostalCode   Category = "postal_code"
	Telecom      Category = "telecom"
	Date         Category = "date"
	Identifier   Category = "identifier"
)

var knownCategories = map[Category]bool{
	GivenName:    true,
	FamilyName:   true,
	NamePrefix:   true,
	NameSuffix:   true,
	PersonName:   true,
	Organization: true,
	Street:       true,
	City:         true,
	County:       true,
	State:        true,
	Country:      true,
	PostalCode:   true,
	Telecom:      true,
	Date:         true,
	Identifier:   true,
}

// Valid reports whether c names a known category.
func (c Category) Valid() bool {
	return knownCategories[c]
}

// SensitiveField is one declarative anonymization rule: the element it
// matches (by local name, namespace-agnostic), which parts of it carry
// sensitive data (text content and/or attributes), the category whose
// generator supplies replacements, and optional ancestor predicates that
// disambiguate context-dependent elements.
type SensitiveField struct {
	Element    string   `yaml:"element"`
	Text       bool     `yaml:"text,omitempty"`
	Attributes []string `yaml:"attributes,omitempty"`
	Category   Category `yaml:"category"`
	Within     []string `yaml:"within,omitempty"`
	NotWithin  []string `yaml:"not_within,omitempty"`
}

// Error reports a malformed policy entry. Policy errors are fatal at
// load time, before any document is touched.
type Error struct {
	Index  int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("policy entry %d: %s", e.Index, e.Reason)
}
