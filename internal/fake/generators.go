package fake

import (
	"math/rand"
	"strings"

	"eicr-anonymizer/internal/format"
)

// rosterGenerator draws tokens from one themed table. It prefers a
// single multi-word value for multi-token shapes, switches to
// abbreviated forms when the original was an abbreviation, and can
// shorten picks to initials.
type rosterGenerator struct {
	f           *Faker
	table       string
	abbrevAware bool
	initials    bool
}

func (g *rosterGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)
	return g.f.retryPick(gc, func() []string {
		return g.propose(rng, gc.Specs)
	})
}

func (g *rosterGenerator) propose(rng *rand.Rand, specs []format.TokenSpec) []string {
	// A multi-token shape prefers one roster value with a matching word
	// count, so "Mos Eisley" can stand in for "New York".
	if len(specs) > 1 && allLetters(specs) {
		if value, ok := g.f.tables.pickWithWords(g.table, rng, len(specs)); ok {
			return strings.Fields(value)
		}
	}

	tokens := make([]string, len(specs))
	for i, spec := range specs {
		tokens[i] = g.pickToken(rng, spec)
	}
	return tokens
}

func (g *rosterGenerator) pickToken(rng *rand.Rand, spec format.TokenSpec) string {
	if spec.Digits {
		return randomDigits(rng, spec.Length)
	}
	if g.abbrevAware && spec.Length <= 3 {
		if abbr, ok := g.f.tables.pickAbbreviation(g.table, rng); ok {
			return abbr
		}
	}
	word := g.f.tables.pickWord(g.table, rng)
	if g.initials && spec.Length == 1 {
		return word[:1]
	}
	return word
}

// personNameGenerator fills flat person-name text such as "Smith, John".
// Comma forms put the family name first; otherwise the final token is
// the family name and the rest are given names.
type personNameGenerator struct {
	f *Faker
}

func (g *personNameGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)
	comma := strings.Contains(gc.Normalized, ",")

	return g.f.retryPick(gc, func() []string {
		n := len(gc.Specs)
		tokens := make([]string, n)
		for i, spec := range gc.Specs {
			switch {
			case spec.Digits:
				tokens[i] = randomDigits(rng, spec.Length)
			case familyPosition(i, n, comma):
				tokens[i] = pickNameWord(g.f, tableFamilyNames, rng, spec)
			default:
				tokens[i] = pickNameWord(g.f, tableGivenNames, rng, spec)
			}
		}
		return tokens
	})
}

func familyPosition(i, n int, comma bool) bool {
	if n == 1 {
		return true
	}
	if comma {
		return i == 0
	}
	return i == n-1
}

func pickNameWord(f *Faker, table string, rng *rand.Rand, spec format.TokenSpec) string {
	word := f.tables.pickWord(table, rng)
	if spec.Length == 1 {
		return word[:1]
	}
	return word
}

// organizationGenerator composes facility names from a themed base plus
// organization words, in the manner of "Theed Medical Center".
type organizationGenerator struct {
	f *Faker
}

func (g *organizationGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)
	return g.f.retryPick(gc, func() []string {
		tokens := make([]string, len(gc.Specs))
		for i, spec := range gc.Specs {
			switch {
			case spec.Digits:
				tokens[i] = randomDigits(rng, spec.Length)
			case i == 0:
				tokens[i] = g.f.tables.pickWord(tableOrganizations, rng)
			default:
				tokens[i] = g.f.tables.pickWord(tableOrgSuffixes, rng)
			}
		}
		return tokens
	})
}

// streetGenerator fills street address lines: digit runs keep their
// length for house numbers, the final letter token becomes a street
// type, and everything else draws from the street-name roster.
type streetGenerator struct {
	f *Faker
}

func (g *streetGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)

	lastLetter := -1
	letters := 0
	for i, spec := range gc.Specs {
		if !spec.Digits {
			lastLetter = i
			letters++
		}
	}

	return g.f.retryPick(gc, func() []string {
		tokens := make([]string, len(gc.Specs))
		for i, spec := range gc.Specs {
			switch {
			case spec.Digits:
				tokens[i] = randomDigits(rng, spec.Length)
			case i == lastLetter && letters > 1:
				tokens[i] = g.streetType(rng, spec)
			default:
				tokens[i] = g.f.tables.pickWord(tableStreetNames, rng)
			}
		}
		return tokens
	})
}

func (g *streetGenerator) streetType(rng *rand.Rand, spec format.TokenSpec) string {
	if spec.Length <= 3 {
		if abbr, ok := g.f.tables.pickAbbreviation(tableStreetTypes, rng); ok {
			return abbr
		}
	}
	return g.f.tables.pickWord(tableStreetTypes, rng)
}

// digitsGenerator preserves character classes without a roster: digit
// runs keep their length, letter runs become random letters. Postal
// codes use it directly.
type digitsGenerator struct {
	f *Faker
}

func (g *digitsGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)
	return g.f.retryPick(gc, func() []string {
		return fallbackTokens(rng, gc.Specs)
	})
}

func allLetters(specs []format.TokenSpec) bool {
	for _, spec := range specs {
		if spec.Digits {
			return false
		}
	}
	return true
}
