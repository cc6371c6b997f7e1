package engine

import (
	"eicr-anonymizer/internal/policy"
	"eicr-anonymizer/internal/scan"
)

// Status classifies the outcome of one processed document.
type Status string

const (
	// StatusDone means every matched field was replaced or legitimately skipped.
	StatusDone Status = "done"
	// StatusPartial means the output was written but some fields kept
	// their original values.
	StatusPartial Status = "partial"
	// StatusFailed means no output was produced.
	StatusFailed Status = "failed"
)

// FieldFailure records one field the engine could not anonymize. The
// field keeps its original value in the output, so a non-empty failure
// list means the output still carries sensitive data.
type FieldFailure struct {
	Path     string          `json:"path"`
	Category policy.Category `json:"category"`
	Reason   string          `json:"reason"`
}

// Record traces one performed replacement. Records carry original
// values and are collected only when the debug channel is enabled.
type Record struct {
	Path        string
	Category    policy.Category
	Original    string
	Replacement string
}

// DocumentResult summarizes one document run.
type DocumentResult struct {
	Input    string
	Output   string
	Status   Status
	Fields   int // field values the policy matched
	Replaced int
	Skipped  int // empty values, sentinels, and null flavors
	Warnings int // duplicates accepted after exhausted collision retries
	Failures []FieldFailure
	Records  []Record
	Residue  []scan.Finding // original values spotted in the written output
	Err      error
}
