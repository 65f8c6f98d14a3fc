// Package workspace manages the on-disk layout that processed documents are
// written into.
//
// A workspace is a plain directory tree:
//
//	<root>/<subpath>/image_store/img_<seq>.<ext>
//	<root>/<subpath>/thumbnails/thumb_<seq>.<ext>
//	<root>/<subpath>/documents/<document id>.json
//
// Sequence numbers are zero-padded to a fixed width. All writes go through
// Write, which never leaves a partially written file at a final path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

const (
	ImageStoreDir = "image_store"
	ThumbnailsDir = "thumbnails"
	DocumentsDir  = "documents"

	ImagePrefix     = "img_"
	ThumbnailPrefix = "thumb_"
	OriginalPrefix  = "original_"

	DefaultSubpath       = "PlanoraAgent"
	DefaultSequenceWidth = 3

	dirPerm  = 0o755
	filePerm = 0o644
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Layout resolves paths inside one workspace.
type Layout struct {
	Root          string
	Subpath       string
	SequenceWidth int
}

// NewLayout validates and builds a Layout. An empty subpath selects
// DefaultSubpath and a width below 1 selects DefaultSequenceWidth.
func NewLayout(root, subpath string, width int) (*Layout, error) {
	if strings.TrimSpace(root) == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidOption, "workspace root is required")
	}
	if subpath == "" {
		subpath = DefaultSubpath
	}
	clean := filepath.Clean(subpath)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, apperrors.Newf(apperrors.ErrInvalidOption, "workspace subpath %q must stay inside the root", subpath)
	}
	if width < 1 {
		width = DefaultSequenceWidth
	}

	return &Layout{
		Root:          filepath.Clean(root),
		Subpath:       clean,
		SequenceWidth: width,
	}, nil
}

// Base returns <root>/<subpath>.
func (l *Layout) Base() string {
	return filepath.Join(l.Root, l.Subpath)
}

func (l *Layout) ImageDir() string {
	return filepath.Join(l.Base(), ImageStoreDir)
}

func (l *Layout) ThumbnailDir() string {
	return filepath.Join(l.Base(), ThumbnailsDir)
}

func (l *Layout) DocumentDir() string {
	return filepath.Join(l.Base(), DocumentsDir)
}

// EnsureDirs creates the image, thumbnail and document directories. It is
// safe to call repeatedly.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.ImageDir(), l.ThumbnailDir(), l.DocumentDir()} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to create %s", dir))
		}
	}
	return nil
}

// Sequence formats seq zero-padded to the layout width. Wider numbers are
// written in full.
func (l *Layout) Sequence(seq int) string {
	return fmt.Sprintf("%0*d", l.SequenceWidth, seq)
}

// ImagePath returns the absolute primary image path for seq; ext has no dot.
func (l *Layout) ImagePath(seq int, ext string) string {
	return filepath.Join(l.ImageDir(), ImagePrefix+l.Sequence(seq)+"."+ext)
}

// ThumbnailPath returns the absolute thumbnail path for seq; ext has no dot.
func (l *Layout) ThumbnailPath(seq int, ext string) string {
	return filepath.Join(l.ThumbnailDir(), ThumbnailPrefix+l.Sequence(seq)+"."+ext)
}

// ManifestPath returns the manifest path for a document ID.
func (l *Layout) ManifestPath(id string) (string, error) {
	if err := ValidateName(id); err != nil {
		return "", err
	}
	return filepath.Join(l.DocumentDir(), id+".json"), nil
}

// Rel converts an absolute workspace path to the slash-separated form stored
// on pages, relative to the workspace root.
func (l *Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Abs resolves a page path produced by Rel back to a filesystem path.
func (l *Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// ValidateName rejects names that cannot be used as a single path element.
func ValidateName(name string) error {
	if !safeName.MatchString(name) || name == "." || name == ".." {
		return apperrors.Newf(apperrors.ErrInvalidOption, "invalid name %q", name)
	}
	return nil
}

// parseSequence extracts the sequence number from a file name such as
// img_007.webp. It reports false for names without the prefix or a numeric
// sequence.
func parseSequence(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	stem := strings.TrimPrefix(name, prefix)
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	if stem == "" {
		return 0, false
	}
	n, err := strconv.Atoi(stem)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
