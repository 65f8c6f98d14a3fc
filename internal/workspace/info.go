package workspace

import (
	"fmt"
	"os"
	"strings"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Info describes the contents of a workspace.
type Info struct {
	Root           string `json:"root" yaml:"root"`
	Base           string `json:"base" yaml:"base"`
	ImageDir       string `json:"image_dir" yaml:"image_dir"`
	ThumbnailDir   string `json:"thumbnail_dir" yaml:"thumbnail_dir"`
	DocumentDir    string `json:"document_dir" yaml:"document_dir"`
	Exists         bool   `json:"exists" yaml:"exists"`
	ImageCount     int    `json:"image_count" yaml:"image_count"`
	OriginalCount  int    `json:"original_count" yaml:"original_count"`
	ThumbnailCount int    `json:"thumbnail_count" yaml:"thumbnail_count"`
	DocumentCount  int    `json:"document_count" yaml:"document_count"`
	TempFileCount  int    `json:"temp_file_count" yaml:"temp_file_count"`
	TotalBytes     int64  `json:"total_bytes" yaml:"total_bytes"`
	// HighestSequence is -1 for an empty workspace.
	HighestSequence int `json:"highest_sequence" yaml:"highest_sequence"`
}

// Info reports directory locations and file counts. A workspace that has not
// been created yet is reported with Exists false and zero counts.
func (l *Layout) Info() (*Info, error) {
	info := &Info{
		Root:            l.Root,
		Base:            l.Base(),
		ImageDir:        l.ImageDir(),
		ThumbnailDir:    l.ThumbnailDir(),
		DocumentDir:     l.DocumentDir(),
		HighestSequence: -1,
	}

	if st, err := os.Stat(l.Base()); err == nil && st.IsDir() {
		info.Exists = true
	} else {
		return info, nil
	}

	tally := func(dir string, count func(name string)) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to list %s", dir))
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if strings.HasPrefix(e.Name(), ".") {
				info.TempFileCount++
				continue
			}
			if fi, err := e.Info(); err == nil {
				info.TotalBytes += fi.Size()
			}
			count(e.Name())
		}
		return nil
	}

	err := tally(l.ImageDir(), func(name string) {
		switch {
		case strings.HasPrefix(name, ImagePrefix):
			info.ImageCount++
		case strings.HasPrefix(name, OriginalPrefix):
			info.OriginalCount++
		}
	})
	if err != nil {
		return nil, err
	}
	if err := tally(l.ThumbnailDir(), func(name string) {
		if strings.HasPrefix(name, ThumbnailPrefix) {
			info.ThumbnailCount++
		}
	}); err != nil {
		return nil, err
	}
	if err := tally(l.DocumentDir(), func(name string) {
		if strings.HasSuffix(name, ".json") {
			info.DocumentCount++
		}
	}); err != nil {
		return nil, err
	}

	highest, err := l.HighestSequence()
	if err != nil {
		return nil, err
	}
	info.HighestSequence = highest
	return info, nil
}
