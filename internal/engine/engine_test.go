package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eicr-anonymizer/internal/cache"
	"eicr-anonymizer/internal/config"
	"eicr-anonymizer/internal/document"
	"eicr-anonymizer/internal/fake"
	"eicr-anonymizer/internal/logger"
	"eicr-anonymizer/internal/policy"
)

const sampleEICR = `<?xml version="1.0" encoding="UTF-8"?>
<ClinicalDocument xmlns="urn:hl7-org:v3">
  <id root="2.16.840.1.113883.19.5" extension="998991"/>
  <title>Initial Public Health Case Report</title>
  <effectiveTime value="20230514103000-0400"/>
  <recordTarget>
    <patientRole>
      <id root="2.16.840.1.113883.19.5" extension="444222222"/>
      <addr use="HP">
        <streetAddressLine>123 Main Street</streetAddressLine>
        <city>Boston</city>
        <county></county>
        <state>MA</state>
        <postalCode>02115</postalCode>
        <country>US</country>
      </addr>
      <addr use="WP">
        <city nullFlavor="UNK"/>
      </addr>
      <telecom use="HP" value="tel:+1-555-867-5309"/>
      <telecom value="mailto:john.smith@unitypoint.org"/>
      <patient>
        <name use="L">
          <prefix>Dr.</prefix>
          <given>John</given>
          <given>UNKNOWN</given>
          <family>Smith</family>
        </name>
        <administrativeGenderCode code="M" codeSystem="2.16.840.1.113883.5.1"/>
        <birthTime value="19750501"/>
        <guardian>
          <guardianPerson>
            <name>
              <family>SMITH</family>
            </name>
          </guardianPerson>
        </guardian>
      </patient>
    </patientRole>
  </recordTarget>
  <informant>
    <assignedEntity>
      <assignedPerson>
        <name>Smith, John</name>
      </assignedPerson>
    </assignedEntity>
  </informant>
  <author>
    <assignedAuthor>
      <representedOrganization>
        <name>Evergreen Medical Group</name>
      </representedOrganization>
    </assignedAuthor>
  </author>
  <componentOf>
    <encompassingEncounter>
      <effectiveTime>
        <low value="20230510"/>
        <high value="20230517"/>
      </effectiveTime>
    </encompassingEncounter>
  </componentOf>
  <component>
    <observation>
      <observationRange>
        <low value="85"/>
      </observationRange>
    </observation>
  </component>
</ClinicalDocument>`

func newTestEngine(t *testing.T, debug bool) (*Engine, *cache.ReplacementCache) {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}

	faker, err := fake.New(fake.Options{Seed: 11})
	if err != nil {
		t.Fatalf("Failed to build faker: %v", err)
	}

	cfg := config.GetDefaults()
	cfg.Debug.Enabled = debug

	rc := cache.New(log.Logger)
	eng, err := New(policy.Builtin(), faker, rc, cfg, log)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}
	return eng, rc
}

func parseDoc(t *testing.T, xml string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	return doc
}

func findTexts(t *testing.T, doc *document.Document, tag string) []string {
	t.Helper()
	var out []string
	err := doc.Walk(func(n *document.Node) error {
		if n.Tag() == tag {
			out = append(out, n.Text())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	return out
}

func findAttrs(t *testing.T, doc *document.Document, tag, attr string) []string {
	t.Helper()
	var out []string
	err := doc.Walk(func(n *document.Node) error {
		if n.Tag() == tag {
			if v, ok := n.Attr(attr); ok {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	return out
}

func parseDay(t *testing.T, value string) time.Time {
	t.Helper()
	day, err := time.Parse("20060102", value)
	if err != nil {
		t.Fatalf("Value %q is not an 8-digit date: %v", value, err)
	}
	return day
}

func TestAnonymizeDocument(t *testing.T) {
	eng, _ := newTestEngine(t, false)
	doc := parseDoc(t, sampleEICR)

	result := eng.Anonymize(doc)

	if result.Status != StatusDone {
		t.Fatalf("Expected status done, got %s (failures: %v)", result.Status, result.Failures)
	}
	if result.Replaced != 21 {
		t.Errorf("Expected 21 replacements, got %d", result.Replaced)
	}
	if result.Skipped != 5 {
		t.Errorf("Expected 5 skips, got %d", result.Skipped)
	}
	if result.Fields != 25 {
		t.Errorf("Expected 25 matched fields, got %d", result.Fields)
	}
	if result.Warnings != 0 || len(result.Failures) != 0 {
		t.Errorf("Expected a clean run, got warnings=%d failures=%v", result.Warnings, result.Failures)
	}
	if len(result.Records) != 0 {
		t.Errorf("Expected no debug records without debug enabled, got %d", len(result.Records))
	}

	t.Run("names", func(t *testing.T) {
		families := findTexts(t, doc, "family")
		if len(families) != 2 {
			t.Fatalf("Expected 2 family elements, got %v", families)
		}
		if families[0] == "Smith" || families[1] == "SMITH" {
			t.Errorf("Expected family names to change, got %v", families)
		}
		if !strings.EqualFold(families[0], families[1]) {
			t.Errorf("Expected the same underlying replacement for both spellings, got %v", families)
		}
		if families[0] == families[1] {
			t.Errorf("Expected casing to follow each original, got %v", families)
		}
		if families[1] != strings.ToUpper(families[1]) {
			t.Errorf("Expected the all-caps original to stay all-caps, got %q", families[1])
		}

		givens := findTexts(t, doc, "given")
		if givens[0] == "John" {
			t.Errorf("Expected the given name to change, got %q", givens[0])
		}
		if givens[1] != "UNKNOWN" {
			t.Errorf("Expected the sentinel to survive untouched, got %q", givens[1])
		}

		prefix := findTexts(t, doc, "prefix")[0]
		if prefix == "Dr." {
			t.Error("Expected the prefix to change")
		}
		if !strings.HasSuffix(prefix, ".") {
			t.Errorf("Expected the trailing period to survive, got %q", prefix)
		}
	})

	t.Run("flat person and organization names", func(t *testing.T) {
		names := findTexts(t, doc, "name")
		var flat, org string
		for _, n := range names {
			switch {
			case strings.Contains(n, ","):
				flat = n
			case strings.TrimSpace(n) != "":
				org = n
			}
		}
		if flat == "" || strings.Contains(flat, "Smith") {
			t.Errorf("Expected a comma-form replacement, got %q", flat)
		}
		if org == "" || strings.Contains(org, "Evergreen") {
			t.Errorf("Expected the organization to change, got %q", org)
		}
		if len(strings.Fields(org)) != 3 {
			t.Errorf("Expected a three-word organization, got %q", org)
		}
	})

	t.Run("address", func(t *testing.T) {
		street := findTexts(t, doc, "streetAddressLine")[0]
		if street == "123 Main Street" || strings.Contains(street, "Main") {
			t.Errorf("Expected the street to change, got %q", street)
		}
		if len(street) < 4 || strings.Trim(street[:3], "0123456789") != "" {
			t.Errorf("Expected a 3-digit house number, got %q", street)
		}

		cities := findTexts(t, doc, "city")
		if cities[0] == "Boston" {
			t.Error("Expected the city to change")
		}
		if cities[1] != "" {
			t.Errorf("Expected the nullFlavor city to stay empty, got %q", cities[1])
		}

		state := findTexts(t, doc, "state")[0]
		if state == "MA" || len(state) != 2 || state != strings.ToUpper(state) {
			t.Errorf("Expected a different two-letter state code, got %q", state)
		}

		postal := findTexts(t, doc, "postalCode")[0]
		if len(postal) != 5 || strings.Trim(postal, "0123456789") != "" {
			t.Errorf("Expected a 5-digit postal code, got %q", postal)
		}

		country := findTexts(t, doc, "country")[0]
		if country == "US" || len(country) != 2 {
			t.Errorf("Expected a different two-letter country code, got %q", country)
		}

		if county := findTexts(t, doc, "county")[0]; county != "" {
			t.Errorf("Expected the empty county to stay empty, got %q", county)
		}
	})

	t.Run("telecom", func(t *testing.T) {
		telecoms := findAttrs(t, doc, "telecom", "value")
		phone, email := telecoms[0], telecoms[1]

		if !strings.HasPrefix(phone, "tel:+") {
			t.Errorf("Expected the tel scheme to survive, got %q", phone)
		}
		if !strings.Contains(phone, "-555-") {
			t.Errorf("Expected a 555 exchange, got %q", phone)
		}
		if !strings.HasPrefix(email, "mailto:") || !strings.HasSuffix(email, "@example.com") {
			t.Errorf("Expected a mailto example.com address, got %q", email)
		}
		if strings.Contains(email, "john") || strings.Contains(email, "smith") {
			t.Errorf("Expected the local part to change, got %q", email)
		}
	})

	t.Run("identifiers", func(t *testing.T) {
		roots := findAttrs(t, doc, "id", "root")
		if roots[0] != roots[1] {
			t.Errorf("Expected identical roots to map identically, got %v", roots)
		}
		if roots[0] == "2.16.840.1.113883.19.5" {
			t.Error("Expected the OID root to change")
		}
		if !strings.HasPrefix(roots[0], "2.") {
			t.Errorf("Expected the first arc to survive, got %q", roots[0])
		}

		exts := findAttrs(t, doc, "id", "extension")
		if len(exts[0]) != 6 || len(exts[1]) != 9 {
			t.Errorf("Expected extension lengths to survive, got %v", exts)
		}
		for _, ext := range exts {
			if strings.Trim(ext, "0123456789") != "" {
				t.Errorf("Expected numeric extensions to stay numeric, got %q", ext)
			}
		}

		gender := findAttrs(t, doc, "administrativeGenderCode", "codeSystem")[0]
		if gender != "2.16.840.1.113883.5.1" {
			t.Errorf("Expected unmatched elements to stay untouched, got %q", gender)
		}
	})

	t.Run("dates share one offset", func(t *testing.T) {
		birth := findAttrs(t, doc, "birthTime", "value")[0]
		if birth == "19750501" || len(birth) != 8 {
			t.Fatalf("Expected a shifted 8-digit birth time, got %q", birth)
		}

		eff := findAttrs(t, doc, "effectiveTime", "value")[0]
		if !strings.HasSuffix(eff, "-0400") {
			t.Errorf("Expected the zone to survive, got %q", eff)
		}
		if eff[8:14] != "103000" {
			t.Errorf("Expected the time of day to survive a whole-day shift, got %q", eff)
		}

		lows := findAttrs(t, doc, "low", "value")
		highs := findAttrs(t, doc, "high", "value")
		low, high := parseDay(t, lows[0]), parseDay(t, highs[0])
		if high.Sub(low) != 7*24*time.Hour {
			t.Errorf("Expected the 7-day encounter to stay 7 days, got %s to %s", lows[0], highs[0])
		}

		birthDay := parseDay(t, birth)
		wantOffset := parseDay(t, "20230510").Sub(low)
		if gotOffset := parseDay(t, "19750501").Sub(birthDay); gotOffset != wantOffset {
			t.Errorf("Expected one offset for all dates, got %s and %s", wantOffset, gotOffset)
		}

		if lows[1] != "85" {
			t.Errorf("Expected the reference range to stay untouched, got %q", lows[1])
		}
	})

	t.Run("no residue", func(t *testing.T) {
		data, err := doc.Bytes()
		if err != nil {
			t.Fatalf("Failed to serialize: %v", err)
		}
		lower := strings.ToLower(string(data))
		for _, leaked := range []string{"smith", "john", "boston", "evergreen", "unitypoint", "main"} {
			if strings.Contains(lower, leaked) {
				t.Errorf("Expected %q to be gone from the output", leaked)
			}
		}
	})
}

func TestAnonymizeCollectsRecordsWithDebug(t *testing.T) {
	eng, _ := newTestEngine(t, true)
	doc := parseDoc(t, sampleEICR)

	result := eng.Anonymize(doc)
	if len(result.Records) != result.Replaced {
		t.Fatalf("Expected one record per replacement, got %d records for %d replacements", len(result.Records), result.Replaced)
	}

	found := false
	for _, r := range result.Records {
		if r.Category == policy.City && r.Original == "Boston" {
			found = true
			if r.Replacement == "" || r.Replacement == "Boston" {
				t.Errorf("Expected a real replacement in the record, got %q", r.Replacement)
			}
		}
	}
	if !found {
		t.Error("Expected a debug record for the city replacement")
	}
}

func TestAnonymizeSharesCacheAcrossDocuments(t *testing.T) {
	eng, _ := newTestEngine(t, false)

	first := parseDoc(t, sampleEICR)
	if res := eng.Anonymize(first); res.Status != StatusDone {
		t.Fatalf("Expected the first document to succeed, got %s", res.Status)
	}

	second := parseDoc(t, `<?xml version="1.0"?>
<ClinicalDocument>
  <recordTarget>
    <patientRole>
      <patient>
        <name><family>Smith</family></name>
      </patient>
    </patientRole>
  </recordTarget>
</ClinicalDocument>`)
	if res := eng.Anonymize(second); res.Status != StatusDone {
		t.Fatalf("Expected the second document to succeed, got %s", res.Status)
	}

	a := findTexts(t, first, "family")[0]
	b := findTexts(t, second, "family")[0]
	if a != b {
		t.Errorf("Expected the same replacement across documents, got %q and %q", a, b)
	}
}

func TestAnonymizeFailsOpenOnTokenCountMismatch(t *testing.T) {
	eng, rc := newTestEngine(t, false)

	// Seed the cache as if "smith jones" had been seen as a single token.
	_, _ = rc.GetOrCreate(policy.FamilyName, "smith jones", func() ([]string, error) {
		return []string{"Skywalker"}, nil
	})

	doc := parseDoc(t, `<?xml version="1.0"?>
<ClinicalDocument>
  <recordTarget>
    <patientRole>
      <patient>
        <name><family>Smith Jones</family></name>
      </patient>
    </patientRole>
  </recordTarget>
</ClinicalDocument>`)

	result := eng.Anonymize(doc)
	if result.Status != StatusPartial {
		t.Fatalf("Expected partial status, got %s", result.Status)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %v", result.Failures)
	}
	if result.Failures[0].Category != policy.FamilyName {
		t.Errorf("Expected a family_name failure, got %+v", result.Failures[0])
	}

	if got := findTexts(t, doc, "family")[0]; got != "Smith Jones" {
		t.Errorf("Expected the failed field to keep its original value, got %q", got)
	}
}

func TestProcessFile(t *testing.T) {
	eng, _ := newTestEngine(t, false)
	dir := t.TempDir()

	t.Run("writes anonymized output", func(t *testing.T) {
		inPath := filepath.Join(dir, "case.xml")
		outPath := filepath.Join(dir, "case.anonymized.xml")
		if err := os.WriteFile(inPath, []byte(sampleEICR), 0644); err != nil {
			t.Fatalf("Failed to write input: %v", err)
		}

		result := eng.ProcessFile(inPath, outPath)
		if result.Status != StatusDone {
			t.Fatalf("Expected status done, got %s (%v)", result.Status, result.Err)
		}

		data, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatalf("Expected an output file: %v", err)
		}
		if strings.Contains(string(data), "Smith") {
			t.Error("Expected the output file to be anonymized")
		}
		if _, err := document.Parse(data); err != nil {
			t.Errorf("Expected well-formed output, got %v", err)
		}
	})

	t.Run("fails on malformed input", func(t *testing.T) {
		inPath := filepath.Join(dir, "broken.xml")
		outPath := filepath.Join(dir, "broken.anonymized.xml")
		if err := os.WriteFile(inPath, []byte("<ClinicalDocument><unclosed>"), 0644); err != nil {
			t.Fatalf("Failed to write input: %v", err)
		}

		result := eng.ProcessFile(inPath, outPath)
		if result.Status != StatusFailed || result.Err == nil {
			t.Fatalf("Expected a failed result, got %s (%v)", result.Status, result.Err)
		}
		if _, err := os.Stat(outPath); !os.IsNotExist(err) {
			t.Error("Expected no output file for a failed document")
		}
	})
}
