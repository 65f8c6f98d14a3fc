// Package document defines the Page and Document schema shared with the
// downstream assembly service.
//
// The JSON shapes produced here are a contract: field names, the nullability
// of text_content and the always-present exif object must not change without
// coordinating with consumers.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a Document.
//
// Transitions are pending -> processing -> completed | failed. Completed and
// failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImageMetadata describes the persisted primary image of a page.
//
// Width, Height, Format and FileSize always describe the file at the page's
// image_path, never the source image.
type ImageMetadata struct {
	Width           int                    `json:"width" yaml:"width"`
	Height          int                    `json:"height" yaml:"height"`
	Mode            string                 `json:"mode" yaml:"mode"`
	Format          string                 `json:"format" yaml:"format"`
	FileSize        int64                  `json:"file_size" yaml:"file_size"`
	HasTransparency bool                   `json:"has_transparency" yaml:"has_transparency"`
	EXIF            map[string]interface{} `json:"exif" yaml:"exif"`
}

// Page is one visual unit of a document.
type Page struct {
	PageNumber    int           `json:"page_number" yaml:"page_number"`
	TextContent   *string       `json:"text_content" yaml:"text_content"`
	ImagePath     string        `json:"image_path" yaml:"image_path"`
	ThumbnailPath string        `json:"thumbnail_path" yaml:"thumbnail_path"`
	Metadata      ImageMetadata `json:"metadata" yaml:"metadata"`
	DocumentName  string        `json:"document_name,omitempty" yaml:"document_name,omitempty"`
	DocumentID    string        `json:"document_id,omitempty" yaml:"document_id,omitempty"`
}

// Document aggregates ordered pages plus processing status.
type Document struct {
	ID        string                 `json:"id" yaml:"id"`
	Title     string                 `json:"title" yaml:"title"`
	FilePath  string                 `json:"file_path" yaml:"file_path"`
	NumPages  int                    `json:"num_pages" yaml:"num_pages"`
	Pages     []Page                 `json:"pages" yaml:"pages"`
	Status    Status                 `json:"status" yaml:"status"`
	Metadata  map[string]interface{} `json:"metadata" yaml:"metadata"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`
}

// Metadata keys written by the pipeline.
const (
	MetaOriginalFile = "original_file"
	MetaProcessor    = "processor"
	MetaCreatedAt    = "created_at"
	MetaFileSize     = "file_size"
	MetaImageFormat  = "image_format"
	MetaDimensions   = "dimensions"
	MetaError        = "error"
	MetaErrorCode    = "error_code"
)

// NewID returns a document identifier that is unique across concurrent
// invocations.
func NewID() string {
	return "doc_" + uuid.NewString()
}

// New creates a pending document with no pages. An empty id is replaced by
// NewID.
func New(id, title string) *Document {
	if id == "" {
		id = NewID()
	}
	return &Document{
		ID:        id,
		Title:     title,
		Pages:     []Page{},
		Status:    StatusPending,
		Metadata:  make(map[string]interface{}),
		CreatedAt: time.Now().UTC(),
	}
}

// Start moves a pending document into processing.
func (d *Document) Start() error {
	if d.Status != StatusPending {
		return fmt.Errorf("cannot start document in state %s", d.Status)
	}
	d.Status = StatusProcessing
	return nil
}

// Complete attaches pages and marks the document completed. Pages are
// renumbered from 1 in slice order and receive back-references.
func (d *Document) Complete(pages []Page) error {
	if d.Status != StatusProcessing {
		return fmt.Errorf("cannot complete document in state %s", d.Status)
	}
	if len(pages) == 0 {
		return fmt.Errorf("cannot complete document without pages")
	}

	d.Pages = make([]Page, len(pages))
	copy(d.Pages, pages)
	for i := range d.Pages {
		d.Pages[i].PageNumber = i + 1
		d.Pages[i].DocumentID = d.ID
		d.Pages[i].DocumentName = d.Title
	}
	d.NumPages = len(d.Pages)
	d.FilePath = d.Pages[0].ImagePath
	d.Status = StatusCompleted
	return nil
}

// Fail marks the document failed, drops any pages and records a summary of
// the cause. Failing an already-terminal document is a no-op.
func (d *Document) Fail(err error, code string) {
	if d.Status.Terminal() {
		return
	}
	d.Pages = []Page{}
	d.NumPages = 0
	d.FilePath = ""
	d.Status = StatusFailed
	if err != nil {
		d.Metadata[MetaError] = err.Error()
	}
	if code != "" {
		d.Metadata[MetaErrorCode] = code
	}
}

// GetPage returns the page with the given 1-based number.
func (d *Document) GetPage(number int) (*Page, bool) {
	for i := range d.Pages {
		if d.Pages[i].PageNumber == number {
			return &d.Pages[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a document.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is empty")
	}
	if d.NumPages != len(d.Pages) {
		return fmt.Errorf("num_pages %d does not match %d pages", d.NumPages, len(d.Pages))
	}
	switch d.Status {
	case StatusCompleted:
		if len(d.Pages) == 0 {
			return fmt.Errorf("completed document has no pages")
		}
		if d.FilePath != d.Pages[0].ImagePath {
			return fmt.Errorf("file_path %q does not match first page", d.FilePath)
		}
	case StatusFailed:
		if len(d.Pages) != 0 {
			return fmt.Errorf("failed document carries %d pages", len(d.Pages))
		}
	}
	for i, p := range d.Pages {
		if p.PageNumber != i+1 {
			return fmt.Errorf("page %d has number %d", i+1, p.PageNumber)
		}
		if p.ImagePath == "" || p.ThumbnailPath == "" {
			return fmt.Errorf("page %d is missing a path", p.PageNumber)
		}
		if p.Metadata.Width <= 0 || p.Metadata.Height <= 0 {
			return fmt.Errorf("page %d has invalid dimensions %dx%d", p.PageNumber, p.Metadata.Width, p.Metadata.Height)
		}
		if p.Metadata.EXIF == nil {
			return fmt.Errorf("page %d has nil exif", p.PageNumber)
		}
	}
	return nil
}
