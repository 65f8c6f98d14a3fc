package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	"image/png"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WEBP format decoder

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Format is an output codec tag as reported in page metadata.
type Format string

const (
	FormatJPEG Format = "JPEG"
	FormatPNG  Format = "PNG"
	FormatWEBP Format = "WEBP"
	FormatBMP  Format = "BMP"
	FormatTIFF Format = "TIFF"
)

// SupportedFormats lists the closed set of output formats in a stable order.
func SupportedFormats() []Format {
	return []Format{FormatJPEG, FormatPNG, FormatWEBP, FormatBMP, FormatTIFF}
}

// ParseFormat resolves a case-insensitive format name or common alias
// ("jpg", "tif") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWEBP, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	}
	return "", apperrors.Newf(apperrors.ErrUnsupportedFormat,
		"unsupported output format %q (supported: jpeg, png, webp, bmp, tiff)", s)
}

// Extension returns the file extension used for the format, without a dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	}
	return strings.ToLower(string(f))
}

// SupportsAlpha reports whether the encoder keeps an alpha channel.
// JPEG and BMP outputs are flattened onto an opaque background.
func (f Format) SupportsAlpha() bool {
	switch f {
	case FormatPNG, FormatWEBP, FormatTIFF:
		return true
	}
	return false
}

// FlattenBackground is the color transparent pixels are composited onto when
// the target format cannot carry alpha.
var FlattenBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Decoded is the canonical in-memory form of a source image.
//
// Image has EXIF orientation applied and must be treated as read-only once it
// is shared between transforms.
type Decoded struct {
	Image        image.Image
	SourceFormat string
	Width        int
	Height       int
	EXIF         map[string]interface{}
}

// Decode decodes raw image bytes into a Decoded image.
//
// Zero-length input and images with a zero dimension fail with
// DECODE_INVALID_IMAGE; unrecognized or corrupt data fails with
// DECODE_FAILED. When withEXIF is false the EXIF map is empty.
func Decode(data []byte, withEXIF bool) (*Decoded, error) {
	if len(data) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidImage, "image data is empty")
	}

	cfg, sourceFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// A recognized header that declares no pixels, e.g. a zero-width PNG.
		if sourceFormat != "" && strings.Contains(err.Error(), "dimension") {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidImage, fmt.Sprintf("%s image has zero dimension", sourceFormat))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDecodeFailed, "unrecognized image format")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidImage, "image has zero dimension %dx%d", cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDecodeFailed, fmt.Sprintf("failed to decode %s image", sourceFormat))
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidImage, "decoded image has zero dimension %dx%d", bounds.Dx(), bounds.Dy())
	}

	exif := map[string]interface{}{}
	if withEXIF {
		exif = ReadEXIF(data)
	}

	return &Decoded{
		Image:        img,
		SourceFormat: sourceFormat,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		EXIF:         exif,
	}, nil
}

// Prepare returns the pixels that will actually be encoded for format.
// Images with transparency are flattened onto FlattenBackground for formats
// without alpha support; everything else is returned unchanged.
func Prepare(img image.Image, format Format) image.Image {
	if format.SupportsAlpha() || isOpaque(img) {
		return img
	}
	return Flatten(img, FlattenBackground)
}

// Flatten composites img onto an opaque background of the same size.
func Flatten(img image.Image, bg color.Color) image.Image {
	bounds := img.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// Encode encodes img to format. Quality is honored by JPEG; WEBP output is
// lossless and the other formats ignore it. Alpha is flattened for JPEG and
// BMP.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, Prepare(img, format), imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case FormatBMP:
		err = imaging.Encode(&buf, Prepare(img, format), imaging.BMP)
	case FormatTIFF:
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case FormatWEBP:
		err = nativewebp.Encode(&buf, img, nil)
	default:
		return nil, apperrors.Newf(apperrors.ErrUnsupportedFormat, "unsupported output format %q", format)
	}

	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrEncodeFailed, fmt.Sprintf("failed to encode %s", format))
	}
	return buf.Bytes(), nil
}

// isOpaque reports whether every pixel of img is fully opaque.
func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
