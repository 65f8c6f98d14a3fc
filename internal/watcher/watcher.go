// Package watcher turns an inbox directory into a hot folder: every
// supported image that lands there becomes a single-page document.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ironsheep/image-doc-mcp/internal/document"
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
	"github.com/ironsheep/image-doc-mcp/internal/metrics"
	"github.com/ironsheep/image-doc-mcp/internal/pipeline"
)

// Watch event outcomes recorded in metrics.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
)

// Processor is the part of the pipeline the watcher drives.
type Processor interface {
	Process(ctx context.Context, src pipeline.Source, root string, opts pipeline.Options) (*document.Document, error)
}

// Result reports the outcome for one inbox file.
type Result struct {
	Path     string
	Document *document.Document
	Err      error
}

// Config controls intake.
type Config struct {
	Inbox     string
	Workspace string
	Options   pipeline.Options

	// Debounce is how long a path must be quiet before it is processed.
	Debounce time.Duration
	// RatePerSecond and Burst bound intake; RatePerSecond <= 0 is unlimited.
	RatePerSecond float64
	Burst         int
}

// Watcher monitors an inbox directory and processes new images.
type Watcher struct {
	cfg     Config
	proc    Processor
	logger  *zap.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	fs      *fsnotify.Watcher
	pending chan string
	results chan Result

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]time.Time
}

// New creates a watcher for cfg.Inbox. Documents are always auto-sequenced
// and their manifests saved.
func New(cfg Config, proc Processor, logger *zap.Logger, m *metrics.Metrics) (*Watcher, error) {
	info, err := os.Stat(cfg.Inbox)
	if err != nil {
		return nil, fmt.Errorf("inbox %s: %w", cfg.Inbox, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox %s is not a directory", cfg.Inbox)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	cfg.Options.AutoSequence = true
	cfg.Options.SaveManifest = true

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		proc:    proc,
		logger:  logger.With(zap.String("inbox", cfg.Inbox)),
		metrics: m,
		limiter: rate.NewLimiter(limit, burst),
		fs:      fsWatcher,
		pending: make(chan string, 100),
		results: make(chan Result, 100),
		timers:  make(map[string]*time.Timer),
		seen:    make(map[string]time.Time),
	}, nil
}

// Results delivers one Result per processed file. It is closed when Run
// returns. Results are dropped if nobody reads them.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fs.Add(w.cfg.Inbox); err != nil {
		w.fs.Close()
		close(w.results)
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Inbox, err)
	}
	w.logger.Info("watching inbox", zap.String("workspace", w.cfg.Workspace), zap.Duration("debounce", w.cfg.Debounce))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.dispatch(ctx)
	}()

	w.processEvents(ctx)

	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fs.Close()
	wg.Wait()
	close(w.results)
	return err
}

// processEvents debounces fsnotify events per path.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			name := filepath.Base(event.Name)
			// Skip temp files
			if strings.HasPrefix(name, ".") {
				continue
			}
			if !imaging.IsSupportedExtension(name) {
				w.metrics.WatchEvent(OutcomeIgnored)
				w.logger.Debug("ignoring unsupported file", zap.String("path", event.Name))
				continue
			}

			w.debounce(ctx, event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.timers[path]; exists {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.pending <- path:
		case <-ctx.Done():
		}
	})
}

// dispatch processes settled paths one at a time, within the rate limit.
func (w *Watcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.pending:
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Removed or renamed away before it settled.
		w.metrics.WatchEvent(OutcomeIgnored)
		return
	}

	w.mu.Lock()
	if mod, ok := w.seen[path]; ok && mod.Equal(info.ModTime()) {
		w.mu.Unlock()
		w.metrics.WatchEvent(OutcomeDuplicate)
		return
	}
	w.seen[path] = info.ModTime()
	w.mu.Unlock()

	doc, err := w.proc.Process(ctx, pipeline.FromPath(path), w.cfg.Workspace, w.cfg.Options)
	if err != nil {
		w.metrics.WatchEvent(OutcomeFailed)
		w.logger.Warn("inbox file failed", zap.String("path", path), zap.Error(err))
	} else {
		w.metrics.WatchEvent(OutcomeProcessed)
		w.logger.Info("inbox file processed",
			zap.String("path", path),
			zap.String("document_id", doc.ID),
			zap.String("file_path", doc.FilePath),
		)
	}

	select {
	case w.results <- Result{Path: path, Document: doc, Err: err}:
	default:
	}
}
