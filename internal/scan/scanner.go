package scan

import (
	"regexp"

	"go.uber.org/zap"

	"eicr-anonymizer/internal/cache"
	"eicr-anonymizer/internal/document"
	"eicr-anonymizer/internal/logger"
	"eicr-anonymizer/internal/policy"
)

// minProbeLength filters out two-letter originals such as state codes,
// which collide with ordinary markup far too often to probe for.
const minProbeLength = 3

// Finding reports one original value still present in an output
// document. Value is the cache-normalized form, not the raw field text.
type Finding struct {
	Category policy.Category `json:"category"`
	Value    string          `json:"value"`
	Path     string          `json:"path"`
	Count    int             `json:"count"`
}

// probe is one original value compiled for boundary-aware matching.
type probe struct {
	category policy.Category
	value    string
	re       *regexp.Regexp
}

// Scanner rechecks anonymizer output for original values that survived
// replacement, typically inside narrative blocks the field policy does
// not cover. Matching is by exact normalized value, never by pattern:
// replacements keep the shape of what they replace, so any pattern
// loose enough to catch originals would flag their fakes too.
type Scanner struct {
	probes []probe
	logger *logger.Logger
}

// New compiles a scanner from the replacement mappings of a run. A
// value that also appears as some replacement is not probed for, since
// a hit could not be told apart from a legitimately placed fake.
func New(mappings []cache.Mapping, log *logger.Logger) *Scanner {
	fakes := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		fakes[cache.Normalize(m.Replacement)] = true
	}

	s := &Scanner{logger: log}
	for _, m := range mappings {
		if len(m.Original) < minProbeLength {
			continue
		}
		if fakes[m.Original] {
			log.Debug("Probe suppressed, value doubles as a replacement",
				zap.String("category", m.Category))
			continue
		}
		s.probes = append(s.probes, probe{
			category: policy.Category(m.Category),
			value:    m.Original,
			re:       compileProbe(m.Original),
		})
	}

	log.Info("Residue scanner initialized",
		zap.Int("mappings", len(mappings)),
		zap.Int("probes", len(s.probes)),
	)
	return s
}

// compileProbe builds a case-exact matcher for one normalized value.
// Word boundaries are only anchored where the value itself starts or
// ends with a word character, so values like "tel:+1-555-0142" still
// match.
func compileProbe(value string) *regexp.Regexp {
	expr := regexp.QuoteMeta(value)
	if isWordByte(value[0]) {
		expr = `\b` + expr
	}
	if isWordByte(value[len(value)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// ScanFile loads an output document and scans it.
func (s *Scanner) ScanFile(path string) ([]Finding, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return s.ScanDocument(doc)
}

// ScanDocument walks every element text and attribute value and
// returns a finding per probe per location that still matches.
func (s *Scanner) ScanDocument(doc *document.Document) ([]Finding, error) {
	var findings []Finding
	err := doc.Walk(func(n *document.Node) error {
		findings = append(findings, s.scanValue(n.Path(), n.Text())...)
		for _, attr := range n.Attributes() {
			findings = append(findings, s.scanValue(n.Path()+"/@"+attr.Key, attr.Value)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// scanValue matches every probe against one normalized value. Findings
// are logged by category and path only; the value itself stays out of
// the logs.
func (s *Scanner) scanValue(path, raw string) []Finding {
	text := cache.Normalize(raw)
	if text == "" {
		return nil
	}

	var out []Finding
	for _, p := range s.probes {
		count := len(p.re.FindAllStringIndex(text, -1))
		if count == 0 {
			continue
		}
		out = append(out, Finding{
			Category: p.category,
			Value:    p.value,
			Path:     path,
			Count:    count,
		})
		s.logger.Debug("Original value found in output",
			zap.String("path", path),
			zap.String("category", string(p.category)),
			zap.Int("count", count),
		)
	}
	return out
}
