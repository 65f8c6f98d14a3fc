package watcher

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ironsheep/image-doc-mcp/internal/config"
	"github.com/ironsheep/image-doc-mcp/internal/document"
	"github.com/ironsheep/image-doc-mcp/internal/metrics"
	"github.com/ironsheep/image-doc-mcp/internal/pipeline"
	"github.com/ironsheep/image-doc-mcp/internal/pool"
	"github.com/ironsheep/image-doc-mcp/internal/workspace"
)

type recordingProcessor struct {
	mu    sync.Mutex
	calls []string
	opts  []pipeline.Options
}

func (r *recordingProcessor) Process(_ context.Context, src pipeline.Source, _ string, opts pipeline.Options) (*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, src.Path)
	r.opts = append(r.opts, opts)
	return document.New("", src.BaseName()), nil
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), uint8(y * 10), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// start runs w until the test ends.
func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give fsnotify time to register the directory.
	time.Sleep(50 * time.Millisecond)
}

func waitResult(t *testing.T, w *Watcher) Result {
	t.Helper()
	select {
	case r := <-w.Results():
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func TestNew_InboxMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New(Config{Inbox: file}, &recordingProcessor{}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Inbox: filepath.Join(t.TempDir(), "missing")}, &recordingProcessor{}, nil, nil)
	assert.Error(t, err)
}

func TestWatcher_DebouncesAndFilters(t *testing.T) {
	inbox := t.TempDir()
	proc := &recordingProcessor{}
	w, err := New(Config{Inbox: inbox, Debounce: 100 * time.Millisecond}, proc, zaptest.NewLogger(t), metrics.New())
	require.NoError(t, err)
	start(t, w)

	path := filepath.Join(inbox, "scan.png")
	data := pngData(t)
	// Several writes in quick succession settle into one event.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, data, 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, ".partial.png"), data, 0o644))

	r := waitResult(t, w)
	assert.Equal(t, path, r.Path)
	assert.NoError(t, r.Err)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, proc.count())

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.True(t, proc.opts[0].AutoSequence)
	assert.True(t, proc.opts[0].SaveManifest)
}

func TestWatcher_ProcessesIntoWorkspace(t *testing.T) {
	inbox := t.TempDir()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Workspace.Root = root
	p := pool.New(2, 4, nil)
	t.Cleanup(p.Close)
	coord := pipeline.New(cfg, p, zaptest.NewLogger(t), nil)

	w, err := New(Config{
		Inbox:         inbox,
		Workspace:     root,
		Options:       pipeline.DefaultOptions(cfg),
		Debounce:      50 * time.Millisecond,
		RatePerSecond: 100,
		Burst:         2,
	}, coord, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	start(t, w)

	data := pngData(t)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "a.png"), data, 0o644))
	first := waitResult(t, w)
	require.NoError(t, first.Err)

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "b.png"), data, 0o644))
	second := waitResult(t, w)
	require.NoError(t, second.Err)

	assert.Equal(t, "PlanoraAgent/image_store/img_001.webp", first.Document.FilePath)
	assert.Equal(t, "PlanoraAgent/image_store/img_002.webp", second.Document.FilePath)

	layout, err := workspace.NewLayout(root, cfg.Workspace.Subpath, cfg.Workspace.SequenceWidth)
	require.NoError(t, err)
	saved, err := layout.ReadManifest(second.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, saved.Status)
}

func TestWatcher_ReportsFailures(t *testing.T) {
	inbox := t.TempDir()
	cfg := config.Default()
	cfg.Workspace.Root = t.TempDir()
	p := pool.New(1, 2, nil)
	t.Cleanup(p.Close)

	w, err := New(Config{Inbox: inbox, Options: pipeline.DefaultOptions(cfg), Debounce: 50 * time.Millisecond},
		pipeline.New(cfg, p, nil, nil), zaptest.NewLogger(t), metrics.New())
	require.NoError(t, err)
	start(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "bad.jpg"), []byte("not a jpeg"), 0o644))
	r := waitResult(t, w)
	require.Error(t, r.Err)
	assert.Equal(t, document.StatusFailed, r.Document.Status)
}
