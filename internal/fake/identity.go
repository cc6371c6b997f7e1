package fake

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"eicr-anonymizer/internal/format"
)

// schemeTokens are structural URI tokens that pass through unchanged.
var schemeTokens = map[string]bool{
	"tel":    true,
	"fax":    true,
	"mailto": true,
	"http":   true,
	"https":  true,
}

// telecomGenerator rebuilds contact-point values: URI schemes survive,
// phone digit groups regenerate around a 555 exchange, and email
// addresses move to example.com.
type telecomGenerator struct {
	f *Faker
}

func (g *telecomGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)
	orig := format.ContentTokens(gc.Normalized)
	aligned := len(orig) == len(gc.Specs)
	email := strings.Contains(gc.Normalized, "@") || (aligned && lo.Contains(orig, "mailto"))

	return g.f.retryPick(gc, func() []string {
		tokens := make([]string, len(gc.Specs))
		var letterIdx, digitIdx []int
		for i, spec := range gc.Specs {
			if spec.Digits {
				digitIdx = append(digitIdx, i)
				tokens[i] = randomDigits(rng, spec.Length)
				continue
			}
			if aligned && schemeTokens[orig[i]] {
				tokens[i] = orig[i]
				continue
			}
			letterIdx = append(letterIdx, i)
		}

		if email {
			// Hosts collapse to example.com, local parts become themed words.
			if n := len(letterIdx); n >= 1 {
				tokens[letterIdx[n-1]] = "com"
			}
			if n := len(letterIdx); n >= 2 {
				tokens[letterIdx[n-2]] = "example"
			}
			for _, i := range letterIdx[:max(0, len(letterIdx)-2)] {
				tokens[i] = strings.ToLower(g.f.tables.pickWord(tableGivenNames, rng))
			}
		} else {
			for _, i := range letterIdx {
				tokens[i] = randomLetters(rng, gc.Specs[i].Length)
			}
			placeExchange(tokens, digitIdx, gc.Specs)
		}

		return tokens
	})
}

// placeExchange pins a phone number's exchange digits to 555 so no
// generated number can reach a real subscriber.
func placeExchange(tokens []string, digitIdx []int, specs []format.TokenSpec) {
	if len(digitIdx) == 0 {
		return
	}

	// Grouped numbers: the last 3-digit group before the final group.
	exchange := -1
	for _, i := range digitIdx[:len(digitIdx)-1] {
		if specs[i].Length == 3 {
			exchange = i
		}
	}
	if exchange >= 0 {
		tokens[exchange] = "555"
		return
	}

	// Unseparated numbers: overwrite the exchange position in place.
	i := digitIdx[len(digitIdx)-1]
	switch specs[i].Length {
	case 11:
		tokens[i] = tokens[i][:4] + "555" + tokens[i][7:]
	case 10:
		tokens[i] = tokens[i][:3] + "555" + tokens[i][6:]
	case 7:
		tokens[i] = "555" + tokens[i][3:]
	}
}

// oidRe matches dotted OID roots such as 2.16.840.1.113883.19.5.
var oidRe = regexp.MustCompile(`^[0-2](\.(0|[1-9][0-9]*))+$`)

// identifierGenerator rewrites instance identifiers. OID roots map
// segment by segment so identifiers sharing an assigning-authority
// prefix keep sharing one after anonymization; everything else gets
// class-preserving randomization.
type identifierGenerator struct {
	f *Faker
}

func (g *identifierGenerator) Generate(gc GenerationContext) ([]string, error) {
	rng := g.f.keyRand(gc.Category, gc.Normalized)

	if oidRe.MatchString(gc.Normalized) {
		// Segment consistency wins over the issued-value books here.
		return g.oidTokens(gc)
	}

	orig := format.ContentTokens(gc.Normalized)
	aligned := len(orig) == len(gc.Specs)

	return g.f.retryPick(gc, func() []string {
		if !aligned {
			return fallbackTokens(rng, gc.Specs)
		}
		tokens := make([]string, len(gc.Specs))
		for i := range gc.Specs {
			tokens[i] = scrambleClasses(rng, orig[i])
		}
		return tokens
	})
}

// oidTokens maps each dotted segment through the run's segment table.
// The first arc is structural (0, 1, or 2) and passes through.
func (g *identifierGenerator) oidTokens(gc GenerationContext) ([]string, error) {
	segments := strings.Split(gc.Normalized, ".")
	if len(segments) != len(gc.Specs) {
		return nil, fmt.Errorf("identifier with %d segments does not fit %d tokens", len(segments), len(gc.Specs))
	}

	tokens := make([]string, len(segments))
	tokens[0] = segments[0]
	for i := 1; i < len(segments); i++ {
		tokens[i] = g.f.oidSegment(i, segments[i])
	}
	return tokens, nil
}

// scrambleClasses replaces every character with a random one of the
// same class, keeping letters letters and digits digits.
func scrambleClasses(rng *rand.Rand, s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= '0' && r <= '9':
			out[i] = rune('0' + rng.Intn(10))
		case unicode.IsLetter(r):
			out[i] = rune('a' + rng.Intn(26))
		}
	}
	return string(out)
}
