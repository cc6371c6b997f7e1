package runner

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	"eicr-anonymizer/internal/cache"
	"eicr-anonymizer/internal/config"
	"eicr-anonymizer/internal/engine"
	"eicr-anonymizer/internal/fake"
	"eicr-anonymizer/internal/logger"
	"eicr-anonymizer/internal/policy"
	"eicr-anonymizer/internal/report"
	"eicr-anonymizer/internal/scan"
)

const maxDefaultWorkers = 8

// Runner coordinates one anonymization batch: document discovery, the
// worker pool, progress reporting, and the run summary.
type Runner struct {
	cfg       *config.Config
	logger    *logger.Logger
	engine    *engine.Engine
	cache     *cache.ReplacementCache
	disablePb bool
}

// New wires a runner from configuration: the field policy (custom file
// or builtin), the fake value generators, a fresh replacement cache,
// and the engine on top. Policy and table errors are fatal here, before
// any document is read.
func New(cfg *config.Config, log *logger.Logger, disablePb bool) (*Runner, error) {
	pol := policy.Builtin()
	if cfg.Anonymizer.PolicyFile != "" {
		custom, err := policy.LoadFile(cfg.Anonymizer.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
		pol = custom
		log.Info("Loaded custom field policy",
			zap.String("file", cfg.Anonymizer.PolicyFile),
			zap.Int("fields", len(pol.Fields())),
		)
	}

	faker, err := fake.New(fake.Options{
		Seed:        cfg.Anonymizer.Generator.Seed,
		MaxAttempts: cfg.Anonymizer.Generator.MaxAttempts,
		DataDir:     cfg.Anonymizer.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load fake value tables: %w", err)
	}

	rc := cache.New(log.WithComponent("cache").Logger)
	eng, err := engine.New(pol, faker, rc, cfg, log)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		logger:    log,
		engine:    eng,
		cache:     rc,
		disablePb: disablePb,
	}, nil
}

// Mappings exports the run's replacement mappings for the debug report.
func (r *Runner) Mappings() []cache.Mapping {
	return r.cache.Export()
}

// workers resolves the worker pool size. Zero means one per CPU, capped
// so a wide host does not thrash a disk full of small documents.
func (r *Runner) workers() int {
	n := r.cfg.Anonymizer.Workers
	if n <= 0 {
		n = runtime.NumCPU()
		if n > maxDefaultWorkers {
			n = maxDefaultWorkers
		}
	}
	return n
}

// Run processes every document under the input path and returns the
// run summary. Document failures are reflected in the summary, not in
// the returned error; the error reports batch-level problems only.
func (r *Runner) Run(ctx context.Context, input string) (*report.Summary, error) {
	start := time.Now()
	suffix := r.cfg.Anonymizer.OutputSuffix

	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input path: %w", err)
	}

	docs, err := FindDocuments(input, suffix)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no XML documents found under %s", input)
	}

	if info.IsDir() {
		if _, err := CleanStaleOutputs(input, suffix, r.logger); err != nil {
			return nil, err
		}
	}

	r.logger.Info("Anonymization run started",
		zap.Int("documents", len(docs)),
		zap.Int("workers", r.workers()),
	)

	results := r.process(ctx, docs, suffix)

	if r.cfg.Scan.Enabled {
		r.verify(results)
	}

	summary := report.Build(results, r.cache.GetStats(), time.Since(start))
	r.logger.Info("Anonymization run finished",
		zap.Int("done", summary.Done),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Duration),
	)
	return summary, ctx.Err()
}

// verify rescans written outputs for original values the field policy
// never reached. It runs after the whole batch so values first seen in
// late documents are probed in early ones too.
func (r *Runner) verify(results []*engine.DocumentResult) {
	scanner := scan.New(r.cache.Export(), r.logger.WithComponent("scan"))
	for _, res := range results {
		if res.Status == engine.StatusFailed {
			continue
		}
		findings, err := scanner.ScanFile(res.Output)
		if err != nil {
			r.logger.Warn("Residue scan failed",
				zap.String("document", res.Output),
				zap.Error(err),
			)
			continue
		}
		res.Residue = findings
		if len(findings) > 0 {
			r.logger.Warn("Original values remain in output",
				zap.String("document", res.Output),
				zap.Int("findings", len(findings)),
			)
		}
	}
}

// process fans the documents out over the worker pool. On cancellation
// it stops dispatching and lets in-flight documents finish.
func (r *Runner) process(ctx context.Context, docs []string, suffix string) []*engine.DocumentResult {
	var bar *mpb.Bar
	var progress *mpb.Progress
	if !r.disablePb {
		progress = mpb.New()
		bar = progress.AddBar(int64(len(docs)),
			mpb.BarFillerClearOnComplete(),
			mpb.PrependDecorators(
				decor.Name("anonymizing"),
				decor.CountersNoUnit(" %d / %d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(
					decor.NewPercentage("%.0f", decor.WCSyncSpaceR), "done",
				),
				decor.OnComplete(
					decor.AverageETA(decor.ET_STYLE_GO), "",
				),
			),
		)
	}

	jobs := make(chan string)
	var mu sync.Mutex
	results := make([]*engine.DocumentResult, 0, len(docs))

	var wg sync.WaitGroup
	for i := 0; i < r.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				result := r.engine.ProcessFile(doc, OutputPath(doc, suffix))
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
				if bar != nil {
					bar.Increment()
				}
			}
		}()
	}

dispatch:
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			r.logger.Warn("Run interrupted, finishing in-flight documents")
			break dispatch
		case jobs <- doc:
		}
	}
	close(jobs)
	wg.Wait()

	if progress != nil {
		if int(bar.Current()) < len(docs) {
			bar.SetTotal(-1, true)
		}
		progress.Wait()
	}

	// Workers finish out of order; the report reads better sorted.
	sort.Slice(results, func(i, j int) bool { return results[i].Input < results[j].Input })
	return results
}
