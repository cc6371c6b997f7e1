package format

import (
	"fmt"
	"strings"
	"unicode"
)

// CaseClass classifies the casing of a content run.
type CaseClass int

const (
	CaseLower CaseClass = iota
	CaseUpper
	CaseTitle
	CaseMixed
	CaseDigits
)

func (c CaseClass) String() string {
	switch c {
	case CaseLower:
		return "lower"
	case CaseUpper:
		return "upper"
	case CaseTitle:
		return "title"
	case CaseMixed:
		return "mixed"
	case CaseDigits:
		return "digits"
	default:
		return "unknown"
	}
}

// TokenSpec describes one content run to a generator: its rune length,
// whether it is purely digits, and its case class. Generators match
// digit-run lengths exactly where they can; letter runs are constrained
// by case, not length.
type TokenSpec struct {
	Length int
	Digits bool
	Case   CaseClass
}

// segment is one run of the original value. Literal runs keep their text
// for verbatim re-emission; content runs keep it for mixed-case rendering.
type segment struct {
	text    string
	literal bool
	class   CaseClass
}

// Shape is the formatting skeleton of an original value: every literal
// run byte-for-byte plus the case pattern of every content run. Applying
// a shape to fresh tokens reproduces the original's non-content
// structure exactly.
type Shape struct {
	segments []segment
	specs    []TokenSpec
}

// MismatchError reports a token sequence whose count does not fit the
// shape's content runs.
type MismatchError struct {
	Want int
	Got  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("shape requires %d content tokens, got %d", e.Want, e.Got)
}

// Extract derives the Shape of an original value. Letters and digits
// form content runs; whitespace, punctuation, and symbols form literal
// runs.
func Extract(original string) Shape {
	var shape Shape
	runes := []rune(original)

	i := 0
	for i < len(runes) {
		start := i
		content := isContent(runes[i])
		for i < len(runes) && isContent(runes[i]) == content {
			i++
		}
		run := string(runes[start:i])
		if content {
			class := classify(runes[start:i])
			shape.segments = append(shape.segments, segment{text: run, class: class})
			shape.specs = append(shape.specs, TokenSpec{
				Length: i - start,
				Digits: class == CaseDigits,
				Case:   class,
			})
		} else {
			shape.segments = append(shape.segments, segment{text: run, literal: true})
		}
	}

	return shape
}

// ContentTokens returns just the content runs of a value, in order.
// Generators use this to inspect the original's token structure without
// re-deriving the segmentation.
func ContentTokens(value string) []string {
	var tokens []string
	runes := []rune(value)

	i := 0
	for i < len(runes) {
		start := i
		content := isContent(runes[i])
		for i < len(runes) && isContent(runes[i]) == content {
			i++
		}
		if content {
			tokens = append(tokens, string(runes[start:i]))
		}
	}

	return tokens
}

// Tokens reports how many content tokens the shape requires.
func (s Shape) Tokens() int {
	return len(s.specs)
}

// TokenSpecs returns the per-token requirements in order.
func (s Shape) TokenSpecs() []TokenSpec {
	specs := make([]TokenSpec, len(s.specs))
	copy(specs, s.specs)
	return specs
}

// Apply renders the given content tokens through the shape: literal runs
// verbatim, each token re-cased per its run's recorded class. The token
// count must match the shape exactly.
func (s Shape) Apply(tokens []string) (string, error) {
	if len(tokens) != len(s.specs) {
		return "", &MismatchError{Want: len(s.specs), Got: len(tokens)}
	}

	var b strings.Builder
	next := 0
	for _, seg := range s.segments {
		if seg.literal {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(applyCase(tokens[next], seg))
		next++
	}

	return b.String(), nil
}

func isContent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// classify resolves the case class of a content run. Precedence:
// digits-only, all-upper, all-lower, title, otherwise mixed.
func classify(run []rune) CaseClass {
	var letters, upper, lower int
	firstUpper := false
	tailLower := true
	for _, r := range run {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
			if letters == 1 {
				firstUpper = true
			} else {
				tailLower = false
			}
		} else if unicode.IsLower(r) {
			lower++
		}
	}

	switch {
	case letters == 0:
		return CaseDigits
	case upper == letters:
		return CaseUpper
	case lower == letters:
		return CaseLower
	case firstUpper && tailLower:
		return CaseTitle
	default:
		return CaseMixed
	}
}

func applyCase(token string, seg segment) string {
	switch seg.class {
	case CaseUpper:
		return strings.ToUpper(token)
	case CaseLower:
		return strings.ToLower(token)
	case CaseTitle:
		return title(token)
	case CaseMixed:
		return mixedCase(token, seg.text)
	default:
		// Digit runs pass through as generated.
		return token
	}
}

// title upper-cases the first letter and lower-cases the rest.
func title(token string) string {
	runes := []rune(strings.ToLower(token))
	for i, r := range runes {
		if unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			break
		}
	}
	return string(runes)
}

// mixedCase re-applies the original run's per-position casing to the
// token. Positions beyond the recorded run keep the token's own casing.
func mixedCase(token, original string) string {
	orig := []rune(original)
	out := []rune(token)
	for i := range out {
		if i >= len(orig) {
			break
		}
		switch {
		case unicode.IsUpper(orig[i]):
			out[i] = unicode.ToUpper(out[i])
		case unicode.IsLower(orig[i]):
			out[i] = unicode.ToLower(out[i])
		}
	}
	return string(out)
}
