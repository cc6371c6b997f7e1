package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"eicr-anonymizer/internal/policy"
)

// Key identifies one replacement decision: the policy category plus the
// normalized original value. Formatting is deliberately not part of the
// key, so "SMITH" and "Smith, " in different fields share a replacement.
type Key struct {
	Category   policy.Category
	Normalized string
}

// Mapping is one exported cache row for the debug mapping file.
type Mapping struct {
	Category    string `json:"category"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// Stats reports cache performance for the run summary.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Keys    int     `json:"keys"`
}

// entry gates generation for one key. Fields other than once are
// written under the cache mutex once generation completes.
type entry struct {
	once   sync.Once
	done   bool
	tokens []string
	err    error
}

// ReplacementCache hands every (category, normalized value) pair the
// same replacement tokens for the life of a run. Generation runs at
// most once per key even under concurrent document workers; late
// arrivals block until the first caller's result is available.
type ReplacementCache struct {
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[Key]*entry

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty replacement cache.
func New(logger *zap.Logger) *ReplacementCache {
	return &ReplacementCache{
		logger:  logger,
		entries: make(map[Key]*entry),
	}
}

// Normalize folds a raw field value into its cache form: surrounding
// whitespace trimmed, internal runs collapsed to single spaces,
// trailing periods stripped, everything lowercased. "Dr." and "DR"
// normalize to the same key.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSpace(strings.TrimRight(s, "."))
	return strings.ToLower(s)
}

// GetOrCreate returns the cached tokens for the key, running gen to
// produce them on first sight. A generation error with usable tokens
// (an exhausted collision retry) reaches only the generating caller;
// replays see the tokens with no error. A generation error without
// tokens replays to every caller.
func (rc *ReplacementCache) GetOrCreate(cat policy.Category, normalized string, gen func() ([]string, error)) ([]string, error) {
	key := Key{Category: cat, Normalized: normalized}

	rc.mu.RLock()
	e, ok := rc.entries[key]
	rc.mu.RUnlock()

	if !ok {
		rc.mu.Lock()
		if e, ok = rc.entries[key]; !ok {
			e = &entry{}
			rc.entries[key] = e
		}
		rc.mu.Unlock()
	}

	fresh := false
	e.once.Do(func() {
		fresh = true
		tokens, err := gen()

		rc.mu.Lock()
		e.tokens = tokens
		e.err = err
		e.done = true
		rc.mu.Unlock()
	})

	rc.mu.RLock()
	tokens, err := e.tokens, e.err
	rc.mu.RUnlock()

	if fresh {
		rc.misses.Add(1)
		rc.logger.Debug("Replacement generated",
			zap.String("category", string(cat)),
			zap.Int("tokens", len(tokens)))
		return tokens, err
	}

	rc.hits.Add(1)
	if tokens == nil {
		return nil, err
	}
	return tokens, nil
}

// Len returns the number of cached keys.
func (rc *ReplacementCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}

// GetStats returns cache performance statistics.
func (rc *ReplacementCache) GetStats() Stats {
	stats := Stats{
		Hits:   rc.hits.Load(),
		Misses: rc.misses.Load(),
		Keys:   rc.Len(),
	}
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Export returns every completed mapping, sorted by category then
// original, for the debug report and the mapping file. Failed
// generations are left out.
func (rc *ReplacementCache) Export() []Mapping {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make([]Mapping, 0, len(rc.entries))
	for key, e := range rc.entries {
		if !e.done || e.tokens == nil {
			continue
		}
		out = append(out, Mapping{
			Category:    string(key.Category),
			Original:    key.Normalized,
			Replacement: strings.Join(e.tokens, " "),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Original < out[j].Original
	})
	return out
}
