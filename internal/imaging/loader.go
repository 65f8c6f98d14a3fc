package imaging

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// SupportedExtensions lists the source file extensions accepted for
// processing, lower-case with a leading dot.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tiff", ".tif", ".gif"}

// IsSupportedExtension reports whether path has a supported source extension.
func IsSupportedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CheckFile validates a source path without reading its content.
//
// Returns the file size, or a validation error when the path is empty, does
// not exist, is not a regular file, is empty, exceeds maxSize (when
// maxSize > 0), or has an unsupported extension.
func CheckFile(path string, maxSize int64) (int64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, apperrors.Newf(apperrors.ErrEmptyInput, "file path is required")
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, apperrors.Newf(apperrors.ErrNotFound, "file not found: %s", path)
		}
		return 0, apperrors.Wrap(err, apperrors.ErrNotFound, fmt.Sprintf("cannot stat %s", path))
	}
	if !stat.Mode().IsRegular() {
		return 0, apperrors.Newf(apperrors.ErrNotAFile, "path is not a file: %s", path)
	}
	if err := CheckSize(stat.Size(), maxSize); err != nil {
		return 0, err
	}
	if !IsSupportedExtension(path) {
		return 0, apperrors.Newf(apperrors.ErrUnsupportedExtension,
			"unsupported format %q (supported: %s)", filepath.Ext(path), strings.Join(SupportedExtensions, ", "))
	}
	return stat.Size(), nil
}

// CheckSize validates an input byte count against maxSize (ignored when <= 0).
func CheckSize(size, maxSize int64) error {
	if size == 0 {
		return apperrors.Newf(apperrors.ErrEmptyInput, "input is empty")
	}
	if maxSize > 0 && size > maxSize {
		return apperrors.Newf(apperrors.ErrTooLarge, "input is %d bytes, maximum is %d", size, maxSize)
	}
	return nil
}

// LoadFile validates path and reads it fully into memory.
//
// The read is capped at maxSize+1 bytes so a file that grows after the
// check is still rejected.
func LoadFile(path string, maxSize int64) ([]byte, error) {
	if _, err := CheckFile(path, maxSize); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrNotFound, fmt.Sprintf("failed to open %s", path))
	}
	defer f.Close()

	var r io.Reader = f
	if maxSize > 0 {
		r = io.LimitReader(f, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDecodeFailed, fmt.Sprintf("failed to read %s", path))
	}
	if err := CheckSize(int64(len(data)), maxSize); err != nil {
		return nil, err
	}
	return data, nil
}

// ImageInfo contains facts about a source image file.
type ImageInfo struct {
	// Width and Height are the decoded dimensions after EXIF orientation.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	// Format is the codec detected from the file content ("jpeg", "png", ...).
	Format string `json:"format" yaml:"format"`

	// Mode is the color mode tag of the decoded image.
	Mode string `json:"mode" yaml:"mode"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth" yaml:"color_depth"`

	HasTransparency bool `json:"has_transparency" yaml:"has_transparency"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes" yaml:"file_size_bytes"`
}

// Inspect describes an already-decoded source image.
func Inspect(d *Decoded, fileSize int64) *ImageInfo {
	colorDepth := "8-bit"
	switch d.Image.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16, *image.Alpha16:
		colorDepth = "16-bit"
	}

	return &ImageInfo{
		Width:           d.Width,
		Height:          d.Height,
		Format:          d.SourceFormat,
		Mode:            ColorMode(d.Image),
		ColorDepth:      colorDepth,
		HasTransparency: HasTransparency(d.Image),
		FileSizeBytes:   fileSize,
	}
}

// Dimensions reads only the image header and returns its stored width and
// height, before any orientation is applied.
func Dimensions(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", apperrors.Wrap(err, apperrors.ErrDecodeFailed, "unrecognized image format")
	}
	return cfg.Width, cfg.Height, format, nil
}
