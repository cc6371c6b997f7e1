package fake

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embeddedData embed.FS

const (
	tableGivenNames    = "given_names"
	tableFamilyNames   = "family_names"
	tableNamePrefixes  = "name_prefixes"
	tableNameSuffixes  = "name_suffixes"
	tableStreetNames   = "street_names"
	tableStreetTypes   = "street_types"
	tableCities        = "cities"
	tableCounties      = "counties"
	tableStates        = "states"
	tableCountries     = "countries"
	tableOrganizations = "organizations"
	tableOrgSuffixes   = "organization_suffixes"
)

var requiredTables = []string{
	tableGivenNames,
	tableFamilyNames,
	tableNamePrefixes,
	tableNameSuffixes,
	tableStreetNames,
	tableStreetTypes,
	tableCities,
	tableCounties,
	tableStates,
	tableCountries,
	tableOrganizations,
	tableOrgSuffixes,
}

// Entry is one themed table row. Abbreviation-only entries are drawn
// only when the original value is itself an abbreviation.
type Entry struct {
	Value            string   `yaml:"value"`
	Abbreviations    []string `yaml:"abbreviations,omitempty"`
	AbbreviationOnly bool     `yaml:"abbreviation_only,omitempty"`
}

// roster is one loaded table with its pick pools precomputed.
type roster struct {
	values  []string         // full values, abbreviation-only excluded
	abbrevs []string         // abbreviated forms
	byWords map[int][]string // full values grouped by word count
}

// Tables holds the themed rosters the generators draw from. Loaded once
// per run and read-only afterwards.
type Tables struct {
	rosters map[string]*roster
}

// Table values are plain words, optionally space-separated, so that a
// picked word never carries characters belonging to a shape's literal
// skeleton.
var valueRe = regexp.MustCompile(`^[A-Za-z]+( [A-Za-z]+)*$`)

// loadTables reads every required table. When dataDir is set, files in
// it override the embedded defaults table by table.
func loadTables(dataDir string) (*Tables, error) {
	t := &Tables{rosters: make(map[string]*roster)}
	for _, name := range requiredTables {
		entries, err := loadTable(dataDir, name)
		if err != nil {
			return nil, err
		}
		r, err := buildRoster(name, entries)
		if err != nil {
			return nil, err
		}
		t.rosters[name] = r
	}
	return t, nil
}

func loadTable(dataDir, name string) ([]Entry, error) {
	var data []byte
	if dataDir != "" {
		override, err := os.ReadFile(filepath.Join(dataDir, name+".yaml"))
		if err == nil {
			data = override
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read table %s: %w", name, err)
		}
	}
	if data == nil {
		embedded, err := embeddedData.ReadFile("data/" + name + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("missing embedded table %s: %w", name, err)
		}
		data = embedded
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse table %s: %w", name, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("table %s is empty", name)
	}
	return entries, nil
}

func buildRoster(name string, entries []Entry) (*roster, error) {
	r := &roster{byWords: make(map[int][]string)}
	for i, e := range entries {
		if !valueRe.MatchString(e.Value) {
			return nil, fmt.Errorf("table %s entry %d: invalid value %q (letters and single spaces only)", name, i, e.Value)
		}
		for _, a := range e.Abbreviations {
			if !valueRe.MatchString(a) {
				return nil, fmt.Errorf("table %s entry %d: invalid abbreviation %q", name, i, a)
			}
			r.abbrevs = append(r.abbrevs, a)
		}
		if e.AbbreviationOnly {
			r.abbrevs = append(r.abbrevs, e.Value)
			continue
		}
		r.values = append(r.values, e.Value)
		words := len(strings.Fields(e.Value))
		r.byWords[words] = append(r.byWords[words], e.Value)
	}
	if len(r.values) == 0 {
		return nil, fmt.Errorf("table %s has no full values", name)
	}
	return r, nil
}

// pickValue picks one full value.
func (t *Tables) pickValue(name string, rng *rand.Rand) string {
	r := t.rosters[name]
	return r.values[rng.Intn(len(r.values))]
}

// pickWord picks a single-word value, falling back to the first word of
// a multi-word value when the table has no single words.
func (t *Tables) pickWord(name string, rng *rand.Rand) string {
	r := t.rosters[name]
	if singles := r.byWords[1]; len(singles) > 0 {
		return singles[rng.Intn(len(singles))]
	}
	return strings.Fields(t.pickValue(name, rng))[0]
}

// pickWithWords picks a value with exactly the given word count.
func (t *Tables) pickWithWords(name string, rng *rand.Rand, words int) (string, bool) {
	r := t.rosters[name]
	pool := r.byWords[words]
	if len(pool) == 0 {
		return "", false
	}
	return pool[rng.Intn(len(pool))], true
}

// pickAbbreviation picks an abbreviated form, if the table has any.
func (t *Tables) pickAbbreviation(name string, rng *rand.Rand) (string, bool) {
	r := t.rosters[name]
	if len(r.abbrevs) == 0 {
		return "", false
	}
	return r.abbrevs[rng.Intn(len(r.abbrevs))], true
}
