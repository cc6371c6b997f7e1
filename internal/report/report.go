package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"

	"eicr-anonymizer/internal/cache"
	"eicr-anonymizer/internal/engine"
)

// Summary aggregates a whole run for the console report and the exit
// code decision.
type Summary struct {
	Done     int
	Partial  int
	Failed   int
	Fields   int
	Replaced int
	Skipped  int
	Warnings int
	Failures int
	Residue  int
	Duration time.Duration
	Cache    cache.Stats
	Results  []*engine.DocumentResult
}

// Build folds per-document results into a run summary.
func Build(results []*engine.DocumentResult, stats cache.Stats, duration time.Duration) *Summary {
	return &Summary{
		Done:     lo.CountBy(results, func(r *engine.DocumentResult) bool { return r.Status == engine.StatusDone }),
		Partial:  lo.CountBy(results, func(r *engine.DocumentResult) bool { return r.Status == engine.StatusPartial }),
		Failed:   lo.CountBy(results, func(r *engine.DocumentResult) bool { return r.Status == engine.StatusFailed }),
		Fields:   lo.SumBy(results, func(r *engine.DocumentResult) int { return r.Fields }),
		Replaced: lo.SumBy(results, func(r *engine.DocumentResult) int { return r.Replaced }),
		Skipped:  lo.SumBy(results, func(r *engine.DocumentResult) int { return r.Skipped }),
		Warnings: lo.SumBy(results, func(r *engine.DocumentResult) int { return r.Warnings }),
		Failures: lo.SumBy(results, func(r *engine.DocumentResult) int { return len(r.Failures) }),
		Residue:  lo.SumBy(results, func(r *engine.DocumentResult) int { return len(r.Residue) }),
		Duration: duration,
		Cache:    stats,
		Results:  results,
	}
}

// ExitCode maps the run outcome to the process exit code: 0 when every
// document came out clean, 1 when any document failed or kept original
// values.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 || s.Partial > 0 {
		return 1
	}
	return 0
}

// statusCell renders a document status with the severity color.
func statusCell(status engine.Status) string {
	switch status {
	case engine.StatusDone:
		return color.GreenString(string(status))
	case engine.StatusPartial:
		return color.YellowString(string(status))
	default:
		return color.RedString(string(status))
	}
}

func summaryTable(s *Summary) *uitable.Table {
	table := uitable.New()
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()

	table.AddRow(headerfmt("DOCUMENT"), headerfmt("STATUS"), headerfmt("FIELDS"), headerfmt("REPLACED"), headerfmt("SKIPPED"), headerfmt("FAILURES"))
	for _, r := range s.Results {
		table.AddRow(filepath.Base(r.Input), statusCell(r.Status), r.Fields, r.Replaced, r.Skipped, len(r.Failures))
	}
	return table
}

func failureTable(results []*engine.DocumentResult) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 60
	headerfmt := color.New(color.FgRed, color.Underline).SprintFunc()

	table.AddRow(headerfmt("DOCUMENT"), headerfmt("FIELD"), headerfmt("CATEGORY"), headerfmt("REASON"))
	for _, r := range results {
		for _, f := range r.Failures {
			table.AddRow(filepath.Base(r.Input), f.Path, string(f.Category), f.Reason)
		}
	}
	return table
}

// residueTable lists leftover originals by location and category. The
// values themselves stay off the console outside the debug channel.
func residueTable(results []*engine.DocumentResult) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 60
	headerfmt := color.New(color.FgYellow, color.Underline).SprintFunc()

	table.AddRow(headerfmt("DOCUMENT"), headerfmt("PATH"), headerfmt("CATEGORY"), headerfmt("COUNT"))
	for _, r := range results {
		for _, f := range r.Residue {
			table.AddRow(filepath.Base(r.Input), f.Path, string(f.Category), f.Count)
		}
	}
	return table
}

func mappingTable(mappings []cache.Mapping) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()

	table.AddRow(headerfmt("CATEGORY"), headerfmt("ORIGINAL"), headerfmt("REPLACEMENT"))
	for _, m := range mappings {
		table.AddRow(m.Category, m.Original, m.Replacement)
	}
	return table
}

// PrintSummary renders the per-document table and the run totals to
// stdout. Logs go to stderr, so the report stays machine-scrapable.
func PrintSummary(s *Summary) {
	fmt.Print("\n")
	fmt.Println(summaryTable(s))
	fmt.Print("\n")

	fmt.Printf("documents: %d done, %d partial, %d failed\n", s.Done, s.Partial, s.Failed)
	fmt.Printf("fields: %d matched, %d replaced, %d skipped\n", s.Fields, s.Replaced, s.Skipped)
	fmt.Printf("cache: %d distinct values, %.1f%% hit rate\n", s.Cache.Keys, s.Cache.HitRate)
	fmt.Printf("elapsed: %s\n", s.Duration.Round(time.Millisecond))

	if s.Warnings > 0 {
		color.Yellow("%d replacement(s) reused after exhausted collision retries", s.Warnings)
	}
	if s.Failures > 0 {
		color.Red("%d field(s) kept their original values", s.Failures)
		fmt.Print("\n")
		fmt.Println(failureTable(s.Results))
	}
	if s.Residue > 0 {
		color.Yellow("%d leftover original value(s) found outside policy fields", s.Residue)
		fmt.Print("\n")
		fmt.Println(residueTable(s.Results))
	}
}

// PrintMappings renders the value mapping table. The table exposes
// original sensitive values and is only called on the debug channel.
func PrintMappings(mappings []cache.Mapping) {
	fmt.Print("\n")
	fmt.Println(mappingTable(mappings))
	fmt.Print("\n")
}

// mappingFile is the JSON schema of the exported mapping file.
type mappingFile struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Documents   int             `json:"documents"`
	Mappings    []cache.Mapping `json:"mappings"`
}

// WriteMappingFile exports the replacement mappings as JSON. The file
// links real values to fakes, so it is written owner-readable only.
func WriteMappingFile(path string, documents int, mappings []cache.Mapping) error {
	payload := mappingFile{
		GeneratedAt: time.Now().UTC(),
		Documents:   documents,
		Mappings:    mappings,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}
