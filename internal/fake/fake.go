package fake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"eicr-anonymizer/internal/format"
	"eicr-anonymizer/internal/policy"
)

const defaultMaxAttempts = 10

// maxOffsetDays bounds the per-run date shift to a century. Shifting by
// whole days keeps times of day intact across a document.
const maxOffsetDays = 100 * 365

// ErrExhausted records that collision avoidance gave up after the
// bounded attempt count and a duplicate replacement was accepted. The
// tokens returned alongside it are still usable.
var ErrExhausted = errors.New("could not find an unused replacement")

// GenerationContext carries what a generator needs to propose tokens:
// the category, the token requirements derived from the original's
// shape, and the normalized original for category-specific parsing.
// The normalized original never flows into generated output.
type GenerationContext struct {
	Category   policy.Category
	Specs      []format.TokenSpec
	Normalized string
}

// Generator proposes replacement content tokens for one category.
type Generator interface {
	Generate(gc GenerationContext) ([]string, error)
}

// Options configures a Faker.
type Options struct {
	Seed        int64  // 0 seeds randomly per run
	MaxAttempts int    // collision retry bound, 0 uses the default
	DataDir     string // overrides embedded themed tables per file
}

// Faker owns the themed data tables, the per-run randomness, and the
// per-category generators. Selection is deterministic within a run:
// the same category and normalized value always see the same candidate
// sequence, regardless of visit order.
type Faker struct {
	tables      *Tables
	seed        int64
	offset      time.Duration
	maxAttempts int

	mu          sync.Mutex
	issued      map[policy.Category]map[string]struct{}
	seen        map[policy.Category]map[string]struct{}
	oidSegments map[string]string

	generators map[policy.Category]Generator
}

// New loads the themed tables and builds one generator per category.
func New(opts Options) (*Faker, error) {
	tables, err := loadTables(opts.DataDir)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		// Fresh salt per run so separate runs produce different output.
		seed = int64(fnvOf(uuid.NewString()))
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	f := &Faker{
		tables:      tables,
		seed:        seed,
		maxAttempts: maxAttempts,
		issued:      make(map[policy.Category]map[string]struct{}),
		seen:        make(map[policy.Category]map[string]struct{}),
		oidSegments: make(map[string]string),
	}

	// One date offset per run keeps intervals between document dates.
	offsetRng := rand.New(rand.NewSource(f.keySeed("date-offset")))
	f.offset = time.Duration(1+offsetRng.Int63n(maxOffsetDays)) * 24 * time.Hour

	f.generators = map[policy.Category]Generator{
		policy.GivenName:    &rosterGenerator{f: f, table: tableGivenNames, initials: true},
		policy.FamilyName:   &rosterGenerator{f: f, table: tableFamilyNames, initials: true},
		policy.NamePrefix:   &rosterGenerator{f: f, table: tableNamePrefixes, abbrevAware: true},
		policy.NameSuffix:   &rosterGenerator{f: f, table: tableNameSuffixes, abbrevAware: true},
		policy.PersonName:   &personNameGenerator{f: f},
		policy.Organization: &organizationGenerator{f: f},
		policy.Street:       &streetGenerator{f: f},
		policy.City:         &rosterGenerator{f: f, table: tableCities},
		policy.County:       &rosterGenerator{f: f, table: tableCounties},
		policy.State:        &rosterGenerator{f: f, table: tableStates, abbrevAware: true},
		policy.Country:      &rosterGenerator{f: f, table: tableCountries, abbrevAware: true},
		policy.PostalCode:   &digitsGenerator{f: f},
		policy.Telecom:      &telecomGenerator{f: f},
		policy.Date:         &dateGenerator{f: f},
		policy.Identifier:   &identifierGenerator{f: f},
	}

	return f, nil
}

// Generator returns the generator for a category.
func (f *Faker) Generator(cat policy.Category) (Generator, bool) {
	g, ok := f.generators[cat]
	return g, ok
}

// keySeed derives a stable sub-seed from the run seed and the given parts.
func (f *Faker) keySeed(parts ...string) int64 {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(f.seed))
	h.Write(b[:])
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return int64(h.Sum64())
}

// keyRand builds the deterministic RNG for one cache key.
func (f *Faker) keyRand(cat policy.Category, normalized string) *rand.Rand {
	return rand.New(rand.NewSource(f.keySeed(string(cat), normalized)))
}

func fnvOf(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// retryPick runs a proposal function until it yields a value that
// collides with neither an already-issued replacement nor a real value
// seen for the category. After the attempt bound it accepts the
// duplicate and reports ErrExhausted.
func (f *Faker) retryPick(gc GenerationContext, propose func() []string) ([]string, error) {
	f.markSeen(gc.Category, gc.Normalized)

	var tokens []string
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		tokens = propose()
		key := issuedKey(tokens)
		if !f.taken(gc.Category, key, gc.Normalized) {
			f.claim(gc.Category, key)
			return tokens, nil
		}
	}

	f.claim(gc.Category, issuedKey(tokens))
	return tokens, fmt.Errorf("category %s: %w", gc.Category, ErrExhausted)
}

func issuedKey(tokens []string) string {
	return strings.ToLower(strings.Join(tokens, " "))
}

func (f *Faker) markSeen(cat policy.Category, normalized string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[cat] == nil {
		f.seen[cat] = make(map[string]struct{})
	}
	f.seen[cat][normalized] = struct{}{}
}

func (f *Faker) taken(cat policy.Category, key, normalized string) bool {
	if key == normalized {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.issued[cat][key]; ok {
		return true
	}
	_, ok := f.seen[cat][key]
	return ok
}

func (f *Faker) claim(cat policy.Category, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issued[cat] == nil {
		f.issued[cat] = make(map[string]struct{})
	}
	f.issued[cat][key] = struct{}{}
}

// oidSegment returns the stable replacement for one OID segment at a
// given position, generating it on first use.
func (f *Faker) oidSegment(position int, segment string) string {
	key := fmt.Sprintf("%d:%s", position, segment)

	f.mu.Lock()
	defer f.mu.Unlock()
	if mapped, ok := f.oidSegments[key]; ok {
		return mapped
	}

	rng := rand.New(rand.NewSource(f.keySeed("oid-segment", key)))
	mapped := randomOIDSegment(rng, len(segment))
	f.oidSegments[key] = mapped
	return mapped
}

// randomOIDSegment produces digits of the given length without a
// leading zero, keeping the result a valid OID arc.
func randomOIDSegment(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		if i == 0 && length > 1 {
			b[i] = byte('1' + rng.Intn(9))
		} else {
			b[i] = byte('0' + rng.Intn(10))
		}
	}
	return string(b)
}

func randomDigits(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}

func randomLetters(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte('a' + rng.Intn(26))
	}
	return string(b)
}
