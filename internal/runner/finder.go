package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"eicr-anonymizer/internal/logger"
)

// OutputPath derives an output file name from an input document:
// "case.xml" becomes "case.anonymized.xml" for the default suffix.
func OutputPath(input, suffix string) string {
	return strings.TrimSuffix(input, ".xml") + suffix
}

// isDocument reports whether a directory entry is an input document.
// Files already carrying the output suffix are products of an earlier
// run and are never inputs.
func isDocument(name, suffix string) bool {
	return strings.HasSuffix(name, ".xml") && !strings.HasSuffix(name, suffix)
}

// FindDocuments resolves an input path to the list of documents to
// process. A file path names exactly that document; a directory is
// scanned non-recursively for XML files, skipping earlier outputs. The
// list is sorted so runs are reproducible.
func FindDocuments(path, suffix string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input path: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var docs []string
	for _, entry := range entries {
		if entry.IsDir() || !isDocument(entry.Name(), suffix) {
			continue
		}
		docs = append(docs, filepath.Join(path, entry.Name()))
	}
	sort.Strings(docs)
	return docs, nil
}

// CleanStaleOutputs removes outputs left by earlier runs, so the
// directory afterwards holds exactly this run's results. Returns the
// number of files removed.
func CleanStaleOutputs(dir, suffix string, log *logger.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read input directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove stale output %s: %w", path, err)
		}
		removed++
	}

	if removed > 0 {
		log.Info("Removed stale outputs from earlier runs", zap.Int("count", removed))
	}
	return removed, nil
}
