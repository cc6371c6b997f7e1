package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<ClinicalDocument xmlns="urn:hl7-org:v3">
  <recordTarget>
    <patientRole>
      <id root="2.16.840.1.113883.19.5" extension="12345"/>
      <patient>
        <name>
          <given>John</given>
          <family>Smith</family>
        </name>
      </patient>
    </patientRole>
  </recordTarget>
  <component>
    <text><![CDATA[Narrative <b>block</b>]]></text>
  </component>
</ClinicalDocument>
`

func TestParseAndWalk(t *testing.T) {
	doc, err := Parse([]byte(sampleXML))
	if err != nil {
		t.Fatalf("Failed to parse sample: %v", err)
	}

	var tags []string
	err = doc.Walk(func(n *Node) error {
		tags = append(tags, n.Tag())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{
		"ClinicalDocument", "recordTarget", "patientRole", "id",
		"patient", "name", "given", "family", "component", "text",
	}
	if len(tags) != len(want) {
		t.Fatalf("Expected %d elements, got %d: %v", len(want), len(tags), tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("Expected element %d to be %s, got %s", i, want[i], tags[i])
		}
	}
}

func TestNodeAccessors(t *testing.T) {
	doc, err := Parse([]byte(sampleXML))
	if err != nil {
		t.Fatalf("Failed to parse sample: %v", err)
	}

	err = doc.Walk(func(n *Node) error {
		switch n.Tag() {
		case "family":
			if n.Text() != "Smith" {
				t.Errorf("Expected family text Smith, got %q", n.Text())
			}
			ancestors := n.Ancestors()
			if len(ancestors) == 0 || ancestors[0] != "name" {
				t.Errorf("Expected immediate parent name, got %v", ancestors)
			}
			n.SetText("Skywalker")
		case "id":
			root, ok := n.Attr("root")
			if !ok || root != "2.16.840.1.113883.19.5" {
				t.Errorf("Expected id root attribute, got %q", root)
			}
			if _, ok := n.Attr("missing"); ok {
				t.Error("Expected missing attribute lookup to fail")
			}
			attrs := n.Attributes()
			if len(attrs) != 2 || attrs[0].Key != "root" || attrs[1].Key != "extension" {
				t.Errorf("Expected root and extension attributes in order, got %v", attrs)
			}
			n.SetAttr("extension", "99999")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	serialized := string(out)
	if !strings.Contains(serialized, "<family>Skywalker</family>") {
		t.Error("Expected mutated family text in output")
	}
	if !strings.Contains(serialized, `extension="99999"`) {
		t.Error("Expected mutated extension attribute in output")
	}
	if strings.Contains(serialized, "Smith") {
		t.Error("Expected original family text to be gone")
	}
}

func TestRoundTripPreservation(t *testing.T) {
	doc, err := Parse([]byte(sampleXML))
	if err != nil {
		t.Fatalf("Failed to parse sample: %v", err)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	serialized := string(out)
	if !strings.Contains(serialized, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("Expected XML declaration to survive the round trip")
	}
	if !strings.Contains(serialized, "<![CDATA[Narrative <b>block</b>]]>") {
		t.Error("Expected CDATA section to survive the round trip")
	}
	if !strings.Contains(serialized, "\n    <patientRole>") {
		t.Error("Expected original indentation to survive the round trip")
	}
}

func TestLoadAndWriteFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.xml")
	if err := os.WriteFile(in, []byte(sampleXML), 0644); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}

	doc, err := Load(in)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Path() != in {
		t.Errorf("Expected path %s, got %s", in, doc.Path())
	}

	out := filepath.Join(dir, "doc.anonymized.xml")
	if err := doc.WriteFile(out); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("Expected output file to exist: %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("<ClinicalDocument><unclosed></ClinicalDocument>"))
	if err == nil {
		t.Fatal("Expected malformed XML to fail parsing")
	}
}
