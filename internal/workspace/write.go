package workspace

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Write stores data at path atomically.
//
// The bytes go to a hidden temp file in the target directory, which is
// synced and then either renamed over path (overwrite) or hard-linked to
// path so an existing file is never replaced. The temp file is removed in
// every case. An existing path without overwrite fails with
// PERSIST_OUTPUT_EXISTS; other failures are PERSIST_WRITE_FAILED.
func Write(path string, data []byte, overwrite bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to create %s", dir))
	}

	if !overwrite {
		if _, err := os.Lstat(path); err == nil {
			return apperrors.Newf(apperrors.ErrOutputExists, "%s already exists", path)
		}
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithTempDir(dir), renameio.WithPermissions(filePerm))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to create temp file for %s", path))
	}
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to write %s", path))
	}

	if overwrite {
		if err := pf.CloseAtomicallyReplace(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to replace %s", path))
		}
		return nil
	}

	if err := pf.Sync(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to sync %s", path))
	}
	if err := os.Link(pf.Name(), path); err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return apperrors.Newf(apperrors.ErrOutputExists, "%s already exists", path)
		}
		return apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to link %s", path))
	}
	return nil
}

// Remove deletes paths, ignoring ones that do not exist. All paths are
// attempted; the first failure is returned.
func Remove(paths ...string) error {
	var first error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && first == nil {
			first = apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to remove %s", p))
		}
	}
	return first
}

// Confirm checks that path exists as a regular, non-empty file and returns
// its size.
func Confirm(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("output %s missing after write", path))
	}
	if !st.Mode().IsRegular() || st.Size() == 0 {
		return 0, apperrors.Newf(apperrors.ErrWriteFailed, "output %s is empty", path)
	}
	return st.Size(), nil
}

// SweepTemp removes hidden temp files left in the workspace directories by
// interrupted writes. Only files older than minAge are removed, so writes in
// progress are left alone.
func (l *Layout) SweepTemp(minAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-minAge)
	removed := 0

	for _, dir := range []string{l.ImageDir(), l.ThumbnailDir(), l.DocumentDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, apperrors.Wrap(err, apperrors.ErrWriteFailed, fmt.Sprintf("failed to list %s", dir))
		}

		for _, e := range entries {
			if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
