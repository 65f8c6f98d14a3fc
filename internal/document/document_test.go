package document

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePage(path string) Page {
	return Page{
		ImagePath:     path,
		ThumbnailPath: strings.Replace(path, "image_store/img_", "thumbnails/thumb_", 1),
		Metadata: ImageMetadata{
			Width:    640,
			Height:   480,
			Mode:     "RGB",
			Format:   "WEBP",
			FileSize: 1234,
			EXIF:     map[string]interface{}{},
		},
	}
}

func TestNew_Defaults(t *testing.T) {
	doc := New("", "photo.jpg")

	assert.True(t, strings.HasPrefix(doc.ID, "doc_"))
	assert.Equal(t, "photo.jpg", doc.Title)
	assert.Equal(t, StatusPending, doc.Status)
	assert.NotNil(t, doc.Pages)
	assert.NotNil(t, doc.Metadata)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestNew_KeepsExplicitID(t *testing.T) {
	doc := New("custom-id", "photo.jpg")
	assert.Equal(t, "custom-id", doc.ID)
}

func TestNewID_UniqueUnderConcurrency(t *testing.T) {
	const n = 500
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestLifecycle_Completed(t *testing.T) {
	doc := New("", "scan.png")
	require.NoError(t, doc.Start())
	assert.Equal(t, StatusProcessing, doc.Status)

	pages := []Page{
		samplePage("PlanoraAgent/image_store/img_001.webp"),
		samplePage("PlanoraAgent/image_store/img_002.webp"),
	}
	require.NoError(t, doc.Complete(pages))

	assert.Equal(t, StatusCompleted, doc.Status)
	assert.Equal(t, 2, doc.NumPages)
	assert.Equal(t, "PlanoraAgent/image_store/img_001.webp", doc.FilePath)
	for i, p := range doc.Pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.Equal(t, doc.ID, p.DocumentID)
		assert.Equal(t, "scan.png", p.DocumentName)
	}
	assert.NoError(t, doc.Validate())

	page, ok := doc.GetPage(2)
	require.True(t, ok)
	assert.Equal(t, "PlanoraAgent/image_store/img_002.webp", page.ImagePath)
	_, ok = doc.GetPage(3)
	assert.False(t, ok)
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	doc := New("", "x.png")

	assert.Error(t, doc.Complete([]Page{samplePage("a")}), "complete from pending")

	require.NoError(t, doc.Start())
	assert.Error(t, doc.Start(), "start twice")
	assert.Error(t, doc.Complete(nil), "complete without pages")
}

func TestFail_DropsPagesAndRecordsCause(t *testing.T) {
	doc := New("", "x.png")
	require.NoError(t, doc.Start())

	doc.Fail(errors.New("boom"), "DECODE_FAILED")

	assert.Equal(t, StatusFailed, doc.Status)
	assert.Empty(t, doc.Pages)
	assert.Equal(t, 0, doc.NumPages)
	assert.Equal(t, "boom", doc.Metadata[MetaError])
	assert.Equal(t, "DECODE_FAILED", doc.Metadata[MetaErrorCode])
	assert.NoError(t, doc.Validate())
}

func TestFail_TerminalIsNoop(t *testing.T) {
	doc := New("", "x.png")
	require.NoError(t, doc.Start())
	require.NoError(t, doc.Complete([]Page{samplePage("PlanoraAgent/image_store/img_001.webp")}))

	doc.Fail(errors.New("late"), "X")

	assert.Equal(t, StatusCompleted, doc.Status)
	assert.Len(t, doc.Pages, 1)
}

func TestValidate_CatchesBrokenInvariants(t *testing.T) {
	doc := New("", "x.png")
	require.NoError(t, doc.Start())
	require.NoError(t, doc.Complete([]Page{samplePage("PlanoraAgent/image_store/img_001.webp")}))

	doc.NumPages = 2
	assert.Error(t, doc.Validate())
	doc.NumPages = 1

	doc.Pages[0].Metadata.EXIF = nil
	assert.Error(t, doc.Validate())
}

func TestJSONShape(t *testing.T) {
	doc := New("doc_1", "photo.jpg")
	require.NoError(t, doc.Start())
	require.NoError(t, doc.Complete([]Page{samplePage("PlanoraAgent/image_store/img_001.webp")}))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{"id", "title", "file_path", "num_pages", "pages", "status", "metadata", "created_at"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "completed", raw["status"])

	page := raw["pages"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, page, "text_content")
	assert.Nil(t, page["text_content"])
	meta := page["metadata"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{}, meta["exif"])
	assert.Equal(t, false, meta["has_transparency"])
}
