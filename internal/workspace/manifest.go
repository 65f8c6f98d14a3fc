package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ironsheep/image-doc-mcp/internal/document"
	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// VerifyPages resolves every page's image and thumbnail against the
// workspace root and confirms both exist and are non-empty.
func (l *Layout) VerifyPages(pages []document.Page) error {
	for i, p := range pages {
		for _, rel := range []string{p.ImagePath, p.ThumbnailPath} {
			if _, err := Confirm(l.Abs(rel)); err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
		}
	}
	return nil
}

// WriteManifest persists doc as indented JSON under documents/<id>.json and
// returns the path written.
func (l *Layout) WriteManifest(doc *document.Document, overwrite bool) (string, error) {
	path, err := l.ManifestPath(doc.ID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrWriteFailed, "failed to marshal manifest")
	}
	data = append(data, '\n')

	if err := Write(path, data, overwrite); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func (l *Layout) ReadManifest(id string) (*document.Document, error) {
	path, err := l.ManifestPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "manifest %s not found", id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrNotFound, fmt.Sprintf("failed to read %s", path))
	}

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDecodeFailed, fmt.Sprintf("invalid manifest %s", path))
	}
	return &doc, nil
}

// CopyOriginal stores the unmodified source bytes next to the primary image
// as original_<seq>_<name>.
func (l *Layout) CopyOriginal(name string, data []byte, seq int, overwrite bool) (string, error) {
	base := filepath.Base(name)
	if err := ValidateName(base); err != nil {
		base = "source" + filepath.Ext(name)
	}
	path := filepath.Join(l.ImageDir(), OriginalPrefix+l.Sequence(seq)+"_"+base)
	if err := Write(path, data, overwrite); err != nil {
		return "", err
	}
	return path, nil
}
