package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"eicr-anonymizer/internal/cache"
	"eicr-anonymizer/internal/config"
	"eicr-anonymizer/internal/document"
	"eicr-anonymizer/internal/fake"
	"eicr-anonymizer/internal/format"
	"eicr-anonymizer/internal/logger"
	"eicr-anonymizer/internal/policy"
)

// Engine handles field-level anonymization of parsed clinical documents
type Engine struct {
	policy    *policy.Policy
	faker     *fake.Faker
	cache     *cache.ReplacementCache
	logger    *logger.Logger
	sentinels map[string]bool
	debug     config.DebugConfig
}

// New creates a new anonymization engine. Every category the policy
// references must have a generator; a gap is a configuration error and
// fails before any document is touched.
func New(pol *policy.Policy, faker *fake.Faker, rc *cache.ReplacementCache, cfg *config.Config, log *logger.Logger) (*Engine, error) {
	for _, cat := range pol.Categories() {
		if _, ok := faker.Generator(cat); !ok {
			return nil, fmt.Errorf("policy references category %q with no generator", cat)
		}
	}

	sentinels := make(map[string]bool, len(cfg.Anonymizer.Sentinels))
	for _, s := range cfg.Anonymizer.Sentinels {
		sentinels[cache.Normalize(s)] = true
	}

	engine := &Engine{
		policy:    pol,
		faker:     faker,
		cache:     rc,
		logger:    log,
		sentinels: sentinels,
		debug:     cfg.Debug,
	}

	log.Info("Anonymization engine initialized",
		zap.Int("policy_fields", len(pol.Fields())),
		zap.Int("categories", len(pol.Categories())),
		zap.Int("sentinels", len(sentinels)),
	)

	return engine, nil
}

// ProcessFile anonymizes one document file. Parse and write failures
// fail the whole document; field-level failures leave the original
// value in place and are recorded on the result.
func (e *Engine) ProcessFile(inPath, outPath string) *DocumentResult {
	log := e.logger.WithDocument(filepath.Base(inPath))

	doc, err := document.Load(inPath)
	if err != nil {
		log.Error("Failed to parse document", zap.Error(err))
		return &DocumentResult{
			Input:  inPath,
			Output: outPath,
			Status: StatusFailed,
			Err:    err,
		}
	}

	result := e.Anonymize(doc)
	result.Output = outPath
	if result.Status == StatusFailed {
		log.Error("Document anonymization failed", zap.Error(result.Err))
		return result
	}

	if err := doc.WriteFile(outPath); err != nil {
		log.Error("Failed to write output", zap.Error(err))
		result.Status = StatusFailed
		result.Err = err
		return result
	}

	log.Info("Document anonymized",
		zap.String("output", outPath),
		zap.Int("fields", result.Fields),
		zap.Int("replaced", result.Replaced),
		zap.Int("skipped", result.Skipped),
		zap.Int("failures", len(result.Failures)),
	)
	return result
}

// Anonymize walks a parsed document and rewrites every field the policy
// matches. The document is mutated in place; serialization is the
// caller's concern.
func (e *Engine) Anonymize(doc *document.Document) *DocumentResult {
	result := &DocumentResult{Input: doc.Path(), Status: StatusDone}
	log := e.logger.WithDocument(filepath.Base(doc.Path()))

	err := doc.Walk(func(n *document.Node) error {
		e.processNode(n, result, log)
		return nil
	})
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}

	if len(result.Failures) > 0 {
		result.Status = StatusPartial
	}
	return result
}

// processNode applies the matching policy rule, if any, to one element.
func (e *Engine) processNode(n *document.Node, result *DocumentResult, log *logger.Logger) {
	field := e.policy.Match(n.Tag(), n.Ancestors())
	if field == nil {
		return
	}

	// A CDA null flavor marks data as absent; there is nothing to replace.
	if n.HasAttr("nullFlavor") {
		result.Skipped++
		return
	}

	if field.Text {
		result.Fields++
		original := n.Text()
		if replacement, ok := e.replaceValue(n.Path(), field.Category, original, result, log); ok {
			n.SetText(replacement)
			e.recordReplacement(result, log, n.Path(), field.Category, original, replacement)
		}
	}

	for _, attr := range field.Attributes {
		original, ok := n.Attr(attr)
		if !ok {
			continue
		}
		result.Fields++
		path := n.Path() + "/@" + attr
		if replacement, ok := e.replaceValue(path, field.Category, original, result, log); ok {
			n.SetAttr(attr, replacement)
			e.recordReplacement(result, log, path, field.Category, original, replacement)
		}
	}
}

// replaceValue produces the replacement for one field value. A false
// return means the value was skipped or failed and must stay untouched.
func (e *Engine) replaceValue(path string, cat policy.Category, original string, result *DocumentResult, log *logger.Logger) (string, bool) {
	if strings.TrimSpace(original) == "" {
		result.Skipped++
		return "", false
	}

	normalized := cache.Normalize(original)
	if e.sentinels[normalized] {
		result.Skipped++
		return "", false
	}

	shape := format.Extract(original)
	if shape.Tokens() == 0 {
		// Pure punctuation carries nothing to anonymize.
		result.Skipped++
		return "", false
	}

	gen, ok := e.faker.Generator(cat)
	if !ok {
		e.fail(result, log, path, cat, fmt.Sprintf("no generator for category %s", cat))
		return "", false
	}

	tokens, err := e.cache.GetOrCreate(cat, normalized, func() ([]string, error) {
		return gen.Generate(fake.GenerationContext{
			Category:   cat,
			Specs:      shape.TokenSpecs(),
			Normalized: normalized,
		})
	})
	if errors.Is(err, fake.ErrExhausted) {
		result.Warnings++
		log.Warn("Replacement pool exhausted, duplicate accepted",
			zap.String("path", path),
			zap.String("category", string(cat)),
		)
	} else if err != nil {
		e.fail(result, log, path, cat, err.Error())
		return "", false
	}

	replacement, err := shape.Apply(tokens)
	if err != nil {
		// Tokens cached from an earlier sighting can disagree with this
		// field's token count.
		e.fail(result, log, path, cat, err.Error())
		return "", false
	}
	return replacement, true
}

// fail records a field-level failure. The document keeps going.
func (e *Engine) fail(result *DocumentResult, log *logger.Logger, path string, cat policy.Category, reason string) {
	result.Failures = append(result.Failures, FieldFailure{
		Path:     path,
		Category: cat,
		Reason:   reason,
	})
	log.Warn("Field left unmodified",
		zap.String("path", path),
		zap.String("category", string(cat)),
		zap.String("reason", reason),
	)
}

func (e *Engine) recordReplacement(result *DocumentResult, log *logger.Logger, path string, cat policy.Category, original, replacement string) {
	result.Replaced++
	log.LogReplacement(path, string(cat), original, replacement, e.debug.Enabled)
	if e.debug.Enabled {
		result.Records = append(result.Records, Record{
			Path:        path,
			Category:    cat,
			Original:    original,
			Replacement: replacement,
		})
	}
}
