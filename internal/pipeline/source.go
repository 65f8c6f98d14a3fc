package pipeline

import (
	"path/filepath"
	"strings"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
)

// Source is an input image, either a file path or in-memory bytes.
type Source struct {
	Path string
	Name string
	Data []byte
}

func FromPath(path string) Source {
	return Source{Path: path}
}

// FromBytes wraps already-read image data. name is used for the document
// title and, when it carries an extension, for extension validation.
func FromBytes(name string, data []byte) Source {
	return Source{Name: name, Data: data}
}

// Label returns the path or name identifying the source.
func (s Source) Label() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Name
}

// BaseName returns the file name used for titles.
func (s Source) BaseName() string {
	if l := s.Label(); l != "" {
		return filepath.Base(l)
	}
	return "image"
}

// load validates the source and returns its bytes.
func (s Source) load(maxSize int64) ([]byte, error) {
	if s.Path != "" {
		return imaging.LoadFile(s.Path, maxSize)
	}

	if err := imaging.CheckSize(int64(len(s.Data)), maxSize); err != nil {
		return nil, err
	}
	if ext := filepath.Ext(s.Name); ext != "" && !imaging.IsSupportedExtension(s.Name) {
		return nil, apperrors.Newf(apperrors.ErrUnsupportedExtension,
			"unsupported format %q (supported: %s)", ext, strings.Join(imaging.SupportedExtensions, ", "))
	}
	return s.Data, nil
}
