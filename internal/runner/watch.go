package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"eicr-anonymizer/internal/engine"
)

// Watch keeps a directory's outputs current: documents created or
// rewritten under it are anonymized after a debounce window, until the
// context is cancelled. The caller is expected to have processed the
// existing documents first.
func (r *Runner) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	r.logger.Info("Watching for documents",
		zap.String("dir", dir),
		zap.Duration("debounce", r.cfg.Watch.Debounce),
	)

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isDocument(filepath.Base(ev.Name), r.cfg.Anonymizer.OutputSuffix) {
				continue
			}
			r.schedule(ctx, &mu, timers, ev.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

// schedule arms the per-file debounce timer, restarting it while the
// file is still being written to.
func (r *Runner) schedule(ctx context.Context, mu *sync.Mutex, timers map[string]*time.Timer, path string) {
	mu.Lock()
	defer mu.Unlock()

	if t, ok := timers[path]; ok {
		t.Reset(r.cfg.Watch.Debounce)
		return
	}

	timers[path] = time.AfterFunc(r.cfg.Watch.Debounce, func() {
		mu.Lock()
		delete(timers, path)
		mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		result := r.engine.ProcessFile(path, OutputPath(path, r.cfg.Anonymizer.OutputSuffix))
		if r.cfg.Scan.Enabled && result.Status != engine.StatusFailed {
			r.verify([]*engine.DocumentResult{result})
		}
	})
}
