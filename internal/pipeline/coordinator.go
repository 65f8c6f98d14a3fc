// Package pipeline turns source images into documents.
//
// A Coordinator validates options and inputs, decodes each source once,
// renders the primary image and thumbnail concurrently on a shared worker
// pool, persists both atomically into the workspace and assembles the
// Document. Process and ProcessBatch always return a Document; when the
// returned error is non-nil the Document is failed, carries no pages, and
// every file written for it has been removed.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-doc-mcp/internal/config"
	"github.com/ironsheep/image-doc-mcp/internal/document"
	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
	"github.com/ironsheep/image-doc-mcp/internal/metrics"
	"github.com/ironsheep/image-doc-mcp/internal/pool"
	"github.com/ironsheep/image-doc-mcp/internal/workspace"
)

// Processor is recorded in document metadata.
const Processor = "image-doc-mcp"

// Coordinator runs the pipeline. It is safe for concurrent use.
type Coordinator struct {
	cfg       *config.Config
	pool      *pool.Pool
	logger    *zap.Logger
	metrics   *metrics.Metrics
	allocator *workspace.Allocator
}

// New creates a Coordinator. logger and m may be nil.
func New(cfg *config.Config, p *pool.Pool, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		pool:      p,
		logger:    logger,
		metrics:   m,
		allocator: workspace.NewAllocator(cfg.Workspace.SequenceBase),
	}
}

func (c *Coordinator) Config() *config.Config {
	return c.cfg
}

// PoolStats reports usage of the shared worker pool.
func (c *Coordinator) PoolStats() pool.Stats {
	return c.pool.Stats()
}

// Layout resolves the workspace for root; an empty root selects the
// configured one.
func (c *Coordinator) Layout(root string) (*workspace.Layout, error) {
	if root == "" {
		root = c.cfg.Workspace.Root
	}
	return workspace.NewLayout(root, c.cfg.Workspace.Subpath, c.cfg.Workspace.SequenceWidth)
}

// Process turns one source into a single-page document.
func (c *Coordinator) Process(ctx context.Context, src Source, root string, opts Options) (*document.Document, error) {
	return c.ProcessBatch(ctx, []Source{src}, root, opts)
}

// ProcessBatch turns sources into one document with a page per source, in
// order. Sequence numbers are contiguous from the start sequence. Any page
// failure fails the whole document.
func (c *Coordinator) ProcessBatch(ctx context.Context, sources []Source, root string, opts Options) (*document.Document, error) {
	title := opts.Title
	if title == "" && len(sources) > 0 {
		title = sources[0].BaseName()
	}
	doc := document.New(opts.DocumentID, title)
	doc.Metadata[document.MetaProcessor] = Processor
	doc.Metadata[document.MetaCreatedAt] = doc.CreatedAt.Format(time.RFC3339)
	if len(sources) == 1 {
		doc.Metadata[document.MetaOriginalFile] = sources[0].Label()
	} else if len(sources) > 1 {
		labels := make([]string, len(sources))
		for i, s := range sources {
			labels[i] = s.Label()
		}
		doc.Metadata[document.MetaOriginalFile] = labels
	}

	record := c.metrics.Begin()
	log := c.logger.With(zap.String("document_id", doc.ID), zap.Int("sources", len(sources)))

	fail := func(err error) (*document.Document, error) {
		code := apperrors.GetCode(err)
		doc.Fail(err, code)
		record(string(document.StatusFailed), code, 0)
		log.Warn("document failed", zap.String("code", code), zap.Error(err))
		return doc, err
	}

	if c.cfg.Processing.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Processing.Timeout)
		defer cancel()
	}

	// Options first, then inputs; nothing is written until both pass.
	ro, err := opts.resolve()
	if err != nil {
		return fail(err)
	}
	if len(sources) == 0 {
		return fail(apperrors.Newf(apperrors.ErrEmptyInput, "no input images"))
	}
	layout, err := c.Layout(root)
	if err != nil {
		return fail(err)
	}

	inputs := make([][]byte, len(sources))
	for i, src := range sources {
		data, err := src.load(c.cfg.Processing.MaxFileSize)
		if err != nil {
			return fail(err)
		}
		inputs[i] = data
	}

	start, err := c.sequenceStart(layout, ro, len(sources))
	if err != nil {
		return fail(err)
	}

	if err := doc.Start(); err != nil {
		return fail(err)
	}
	log.Debug("processing", zap.String("workspace", layout.Base()), zap.Int("first_sequence", start))

	var (
		mu      sync.Mutex
		written []string
	)
	track := func(paths ...string) {
		mu.Lock()
		written = append(written, paths...)
		mu.Unlock()
	}

	pages := make([]document.Page, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.pool.Workers())
	for i := range sources {
		i := i
		g.Go(func() error {
			page, err := c.processPage(gctx, layout, ro, sources[i], inputs[i], start+i, track)
			if err != nil {
				return fmt.Errorf("page %d (%s): %w", i+1, sources[i].BaseName(), err)
			}
			pages[i] = page
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rmErr := workspace.Remove(written...); rmErr != nil {
			log.Error("rollback incomplete", zap.Strings("paths", written), zap.Error(rmErr))
		}
		return fail(classify(err))
	}

	if err := layout.VerifyPages(pages); err != nil {
		_ = workspace.Remove(written...)
		return fail(err)
	}
	if err := doc.Complete(pages); err != nil {
		_ = workspace.Remove(written...)
		return fail(err)
	}

	var stored int64
	for _, p := range doc.Pages {
		stored += p.Metadata.FileSize
	}
	doc.Metadata[document.MetaFileSize] = stored
	first, _ := doc.GetPage(1)
	doc.Metadata[document.MetaImageFormat] = first.Metadata.Format
	doc.Metadata[document.MetaDimensions] = fmt.Sprintf("%dx%d", first.Metadata.Width, first.Metadata.Height)

	if ro.SaveManifest {
		path, err := layout.WriteManifest(doc, ro.Overwrite)
		if err != nil {
			log.Warn("manifest not written", zap.Error(err))
		} else {
			log.Debug("manifest written", zap.String("path", path))
			if size, err := workspace.Confirm(path); err == nil {
				c.metrics.AddBytes(metrics.KindManifest, size)
			}
		}
	}

	record(string(document.StatusCompleted), "", doc.NumPages)
	log.Info("document completed",
		zap.Int("pages", doc.NumPages),
		zap.String("file_path", doc.FilePath),
	)
	return doc, nil
}

// sequenceStart picks the first sequence and, unless overwriting, checks
// that none of the target names are taken.
func (c *Coordinator) sequenceStart(layout *workspace.Layout, ro *resolved, n int) (int, error) {
	if ro.AutoSequence {
		return c.allocator.Reserve(layout, n)
	}

	start := ro.SequenceStart
	if ro.Overwrite {
		return start, nil
	}
	for seq := start; seq < start+n; seq++ {
		for _, p := range []string{
			layout.ImagePath(seq, ro.output.Extension()),
			layout.ThumbnailPath(seq, ro.thumbnail.Extension()),
		} {
			if _, err := workspace.Confirm(p); err == nil {
				return 0, apperrors.Newf(apperrors.ErrOutputExists, "%s already exists", p)
			}
		}
	}
	return start, nil
}

// processPage decodes one source, renders both variants on the pool and
// persists them. Every path written is reported through track, including on
// failure.
func (c *Coordinator) processPage(
	ctx context.Context,
	layout *workspace.Layout,
	ro *resolved,
	src Source,
	data []byte,
	seq int,
	track func(paths ...string),
) (document.Page, error) {
	decoded, err := imaging.Decode(data, c.cfg.Processing.EnableEXIF)
	if err != nil {
		return document.Page{}, err
	}

	// Both tasks read decoded.Image; neither modifies it.
	var primary, thumb *imaging.Variant
	primaryH, err := c.submit(ctx, func(context.Context) error {
		resized, err := imaging.ResizeToBounds(decoded.Image, ro.MaxWidth, ro.MaxHeight)
		if err != nil {
			return err
		}
		primary, err = imaging.Render(resized, ro.output, ro.Quality)
		return err
	})
	if err != nil {
		return document.Page{}, err
	}
	thumbH, err := c.submit(ctx, func(context.Context) error {
		small, err := imaging.MakeThumbnail(decoded.Image, ro.ThumbMaxDim)
		if err != nil {
			return err
		}
		thumb, err = imaging.Render(small, ro.thumbnail, ro.ThumbnailQuality)
		return err
	})
	if err != nil {
		return document.Page{}, err
	}
	if err := primaryH.Wait(ctx); err != nil {
		return document.Page{}, err
	}
	if err := thumbH.Wait(ctx); err != nil {
		return document.Page{}, err
	}

	if err := ctx.Err(); err != nil {
		return document.Page{}, err
	}

	imagePath := layout.ImagePath(seq, ro.output.Extension())
	thumbPath := layout.ThumbnailPath(seq, ro.thumbnail.Extension())

	if err := workspace.Write(imagePath, primary.Data, ro.Overwrite); err != nil {
		return document.Page{}, err
	}
	track(imagePath)
	if err := workspace.Write(thumbPath, thumb.Data, ro.Overwrite); err != nil {
		return document.Page{}, err
	}
	track(thumbPath)

	if ro.CopyOriginal {
		orig, err := layout.CopyOriginal(src.BaseName(), data, seq, ro.Overwrite)
		if err != nil {
			return document.Page{}, err
		}
		track(orig)
		c.metrics.AddBytes(metrics.KindOriginal, int64(len(data)))
	}

	imageSize, err := workspace.Confirm(imagePath)
	if err != nil {
		return document.Page{}, err
	}
	thumbSize, err := workspace.Confirm(thumbPath)
	if err != nil {
		return document.Page{}, err
	}
	c.metrics.AddBytes(metrics.KindImage, imageSize)
	c.metrics.AddBytes(metrics.KindThumbnail, thumbSize)

	if err := ctx.Err(); err != nil {
		return document.Page{}, err
	}

	meta := imaging.Extract(primary.Image, ro.output, imageSize, decoded.EXIF)
	meta.Width, meta.Height = primary.Width, primary.Height

	return document.Page{
		ImagePath:     layout.Rel(imagePath),
		ThumbnailPath: layout.Rel(thumbPath),
		Metadata:      meta,
	}, nil
}

func (c *Coordinator) submit(ctx context.Context, task pool.Task) (*pool.Handle, error) {
	if c.cfg.Pool.Admission == config.AdmissionReject {
		return c.pool.TrySubmit(ctx, task)
	}
	return c.pool.Submit(ctx, task)
}

// classify maps context errors to pipeline error codes.
func classify(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrTimeout, "processing timed out")
	case stderrors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCanceled, "processing canceled")
	}
	return err
}
