package fake

import (
	"math/rand"
	"regexp"
	"strings"
	"time"

	"eicr-anonymizer/internal/format"
)

// tsLayouts maps digit counts to CDA timestamp precisions.
var tsLayouts = map[int]string{
	4:  "2006",
	6:  "200601",
	8:  "20060102",
	10: "2006010215",
	12: "200601021504",
	14: "20060102150405",
}

var zoneRe = regexp.MustCompile(`[+-](\d{4})$`)

// dateGenerator shifts timestamps into the past by the run's fixed
// offset and re-renders them at the original precision, so intervals
// between any two document dates survive anonymization. Zone suffixes
// pass through; unparseable values fall back to class-preserving digits.
type dateGenerator struct {
	f *Faker
}

func (g *dateGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)

	norm := strings.TrimSpace(gc.Normalized)
	zone := ""
	core := norm
	if m := zoneRe.FindStringSubmatch(norm); m != nil && len(digitsOf(norm))-4 >= 8 {
		zone = m[1]
		core = norm[:len(norm)-len(m[0])]
	}

	shifted, ok := g.shift(digitsOf(core))
	if !ok {
		return fallbackTokens(rng, gc.Specs), nil
	}

	tokens := make([]string, len(gc.Specs))
	idxs := make([]int, 0, len(gc.Specs))
	for i, spec := range gc.Specs {
		if !spec.Digits {
			return fallbackTokens(rng, gc.Specs), nil
		}
		idxs = append(idxs, i)
	}

	if zone != "" {
		last := idxs[len(idxs)-1]
		tokens[last] = zone
		idxs = idxs[:len(idxs)-1]
	}

	need := 0
	for _, i := range idxs {
		need += gc.Specs[i].Length
	}
	if need != len(shifted) {
		return fallbackTokens(rng, gc.Specs), nil
	}

	pos := 0
	for _, i := range idxs {
		tokens[i] = shifted[pos : pos+gc.Specs[i].Length]
		pos += gc.Specs[i].Length
	}
	return tokens, nil
}

// shift parses a timestamp at any supported precision, subtracts the
// run offset, and re-renders at the same precision.
func (g *dateGenerator) shift(digits string) (string, bool) {
	layout, ok := tsLayouts[len(digits)]
	if !ok {
		return "", false
	}
	t, err := time.Parse(layout, digits)
	if err != nil {
		return "", false
	}
	return t.Add(-g.f.offset).Format("20060102150405")[:len(digits)], true
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fallbackTokens fills a shape with random content of matching classes.
func fallbackTokens(rng *rand.Rand, specs []format.TokenSpec) []string {
	tokens := make([]string, len(specs))
	for i, spec := range specs {
		if spec.Digits {
			tokens[i] = randomDigits(rng, spec.Length)
		} else {
			tokens[i] = randomLetters(rng, spec.Length)
		}
	}
	return tokens
}
