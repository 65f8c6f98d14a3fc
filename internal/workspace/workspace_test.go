package workspace

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-doc-mcp/internal/document"
	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

func newLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := NewLayout(t.TempDir(), "", 0)
	require.NoError(t, err)
	return l
}

// hiddenFiles lists dot-prefixed entries in dir.
func hiddenFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestNewLayout(t *testing.T) {
	l, err := NewLayout("/data/ws", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSubpath, l.Subpath)
	assert.Equal(t, DefaultSequenceWidth, l.SequenceWidth)
	assert.Equal(t, filepath.Join("/data/ws", "PlanoraAgent", "image_store"), l.ImageDir())
	assert.Equal(t, filepath.Join("/data/ws", "PlanoraAgent", "thumbnails"), l.ThumbnailDir())
}

func TestNewLayout_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		root    string
		subpath string
	}{
		{"empty root", "", "x"},
		{"escaping subpath", "/data", "../other"},
		{"parent subpath", "/data", ".."},
		{"absolute subpath", "/data", "/etc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.root, tt.subpath, 3)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
		})
	}
}

func TestLayout_Paths(t *testing.T) {
	l, err := NewLayout("/ws", "Agent", 3)
	require.NoError(t, err)

	img := l.ImagePath(1, "webp")
	thumb := l.ThumbnailPath(12, "jpg")
	assert.Equal(t, filepath.Join("/ws", "Agent", "image_store", "img_001.webp"), img)
	assert.Equal(t, filepath.Join("/ws", "Agent", "thumbnails", "thumb_012.jpg"), thumb)
	assert.Equal(t, "img_1234.png", filepath.Base(l.ImagePath(1234, "png")))

	assert.Equal(t, "Agent/image_store/img_001.webp", l.Rel(img))
	assert.Equal(t, img, l.Abs(l.Rel(img)))
}

func TestLayout_EnsureDirsIdempotent(t *testing.T) {
	l := newLayout(t)
	require.NoError(t, l.EnsureDirs())
	require.NoError(t, l.EnsureDirs())

	for _, dir := range []string{l.ImageDir(), l.ThumbnailDir(), l.DocumentDir()} {
		st, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
}

func TestWrite_CreatesFile(t *testing.T) {
	l := newLayout(t)
	path := l.ImagePath(1, "png")

	require.NoError(t, Write(path, []byte("pixels"), false))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(got))
	assert.Empty(t, hiddenFiles(t, l.ImageDir()))

	size, err := Confirm(path)
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)
}

func TestWrite_RefusesOverwrite(t *testing.T) {
	l := newLayout(t)
	path := l.ImagePath(1, "png")
	require.NoError(t, Write(path, []byte("first"), false))

	err := Write(path, []byte("second"), false)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrOutputExists))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	assert.Empty(t, hiddenFiles(t, l.ImageDir()))
}

func TestWrite_Overwrite(t *testing.T) {
	l := newLayout(t)
	path := l.ImagePath(1, "png")
	require.NoError(t, Write(path, []byte("first"), false))
	require.NoError(t, Write(path, []byte("second"), true))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Empty(t, hiddenFiles(t, l.ImageDir()))
}

func TestWrite_ConcurrentNoClobber(t *testing.T) {
	l := newLayout(t)
	path := l.ImagePath(7, "png")

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- Write(path, []byte("data"), false)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, stderrors.Is(err, apperrors.ErrOutputExists), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Empty(t, hiddenFiles(t, l.ImageDir()))
}

func TestConfirm_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Confirm(path)
	require.Error(t, err)
	assert.Equal(t, "PERSIST_WRITE_FAILED", apperrors.GetCode(err))

	_, err = Confirm(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestVerifyPages(t *testing.T) {
	l := newLayout(t)
	require.NoError(t, l.EnsureDirs())

	img := l.ImagePath(1, "webp")
	thumb := l.ThumbnailPath(1, "jpg")
	require.NoError(t, Write(img, []byte("img"), false))
	require.NoError(t, Write(thumb, []byte("thumb"), false))

	pages := []document.Page{{ImagePath: l.Rel(img), ThumbnailPath: l.Rel(thumb)}}
	require.NoError(t, l.VerifyPages(pages))

	require.NoError(t, os.Remove(thumb))
	err := l.VerifyPages(pages)
	require.Error(t, err)
	assert.Equal(t, "PERSIST_WRITE_FAILED", apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "page 1")
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))

	require.NoError(t, Remove(a, filepath.Join(dir, "missing"), ""))
	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepTemp(t *testing.T) {
	l := newLayout(t)
	require.NoError(t, l.EnsureDirs())

	stale := filepath.Join(l.ImageDir(), ".img_001.webp12345")
	fresh := filepath.Join(l.ThumbnailDir(), ".thumb_001.jpg999")
	keep := filepath.Join(l.ImageDir(), "img_001.webp")
	for _, p := range []string{stale, fresh, keep} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	removed, err := l.SweepTemp(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(keep)
	assert.NoError(t, err)

	removed, err = l.SweepTemp(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSweepTemp_MissingWorkspace(t *testing.T) {
	l := newLayout(t)
	removed, err := l.SweepTemp(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestAllocator_StartsAtBase(t *testing.T) {
	l := newLayout(t)
	a := NewAllocator(1)

	start, err := a.Reserve(l, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, start)

	start, err = a.Reserve(l, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, start)
}

func TestAllocator_SkipsExisting(t *testing.T) {
	l := newLayout(t)
	require.NoError(t, Write(l.ImagePath(5, "webp"), []byte("x"), false))
	require.NoError(t, Write(l.ThumbnailPath(9, "jpg"), []byte("x"), false))
	require.NoError(t, Write(filepath.Join(l.ImageDir(), "img_abc.webp"), []byte("x"), false))

	start, err := NewAllocator(1).Reserve(l, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, start)
}

func TestAllocator_ConcurrentRangesDisjoint(t *testing.T) {
	l := newLayout(t)
	a := NewAllocator(1)

	const callers = 20
	starts := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := a.Reserve(l, 2)
			assert.NoError(t, err)
			starts <- s
		}()
	}
	wg.Wait()
	close(starts)

	seen := map[int]bool{}
	for s := range starts {
		for _, n := range []int{s, s + 1} {
			assert.False(t, seen[n], "sequence %d handed out twice", n)
			seen[n] = true
		}
	}
	assert.Len(t, seen, callers*2)
}

func TestAllocator_RejectsZero(t *testing.T) {
	_, err := NewAllocator(1).Reserve(newLayout(t), 0)
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	l := newLayout(t)

	info, err := l.Info()
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, -1, info.HighestSequence)

	require.NoError(t, Write(l.ImagePath(1, "webp"), []byte("abc"), false))
	require.NoError(t, Write(l.ImagePath(2, "webp"), []byte("abcd"), false))
	require.NoError(t, Write(l.ThumbnailPath(1, "jpg"), []byte("t"), false))
	_, err = l.CopyOriginal("photo.jpg", []byte("orig"), 1, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(l.ImageDir(), ".leftover"), []byte("z"), 0o644))

	info, err = l.Info()
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, 2, info.ImageCount)
	assert.Equal(t, 1, info.OriginalCount)
	assert.Equal(t, 1, info.ThumbnailCount)
	assert.Equal(t, 1, info.TempFileCount)
	assert.Equal(t, int64(3+4+1+4), info.TotalBytes)
	assert.Equal(t, 2, info.HighestSequence)
}

func TestManifest_RoundTrip(t *testing.T) {
	l := newLayout(t)
	doc := document.New("", "photo.jpg")
	require.NoError(t, doc.Start())
	require.NoError(t, doc.Complete([]document.Page{{
		ImagePath:     "PlanoraAgent/image_store/img_001.webp",
		ThumbnailPath: "PlanoraAgent/thumbnails/thumb_001.jpg",
		Metadata: document.ImageMetadata{
			Width: 10, Height: 10, Mode: "RGB", Format: "WEBP", FileSize: 5,
			EXIF: map[string]interface{}{},
		},
	}}))

	path, err := l.WriteManifest(doc, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.DocumentDir(), doc.ID+".json"), path)

	got, err := l.ReadManifest(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, document.StatusCompleted, got.Status)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, doc.Pages[0].ImagePath, got.Pages[0].ImagePath)

	_, err = l.WriteManifest(doc, false)
	assert.True(t, stderrors.Is(err, apperrors.ErrOutputExists))
}

func TestManifest_RejectsUnsafeID(t *testing.T) {
	l := newLayout(t)
	for _, id := range []string{"../escape", "a/b", "", ".hidden"} {
		_, err := l.WriteManifest(&document.Document{ID: id}, false)
		require.Error(t, err, id)
	}

	_, err := l.ReadManifest("doc_missing")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_NOT_FOUND", apperrors.GetCode(err))
}

func TestCopyOriginal(t *testing.T) {
	l := newLayout(t)
	path, err := l.CopyOriginal("/some/dir/Photo.JPG", []byte("raw"), 3, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.ImageDir(), "original_003_Photo.JPG"), path)

	path, err = l.CopyOriginal("bad name.png", []byte("raw"), 4, false)
	require.NoError(t, err)
	assert.Equal(t, "original_004_source.png", filepath.Base(path))
}
