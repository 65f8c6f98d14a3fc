package imaging

import (
	"image"

	"github.com/ironsheep/image-doc-mcp/internal/document"
)

// Color mode tags reported in page metadata.
const (
	ModeRGB  = "RGB"
	ModeRGBA = "RGBA"
	ModeL    = "L"
	ModeLA   = "LA"
	ModeP    = "P"
	ModeCMYK = "CMYK"
)

// ColorMode maps the concrete Go image type to a color mode tag.
//
// RGBA-family images that are fully opaque report "RGB"; the decoders return
// the same Go types for RGB and RGBA sources.
func ColorMode(img image.Image) string {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return ModeL
	case *image.Alpha, *image.Alpha16:
		return ModeLA
	case *image.Paletted:
		return ModeP
	case *image.CMYK:
		return ModeCMYK
	case *image.YCbCr:
		return ModeRGB
	case *image.NYCbCrA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	}
	if isOpaque(img) {
		return ModeRGB
	}
	return ModeRGBA
}

// HasTransparency reports whether the image's mode carries alpha or, for
// palette images, whether the palette holds a transparent entry.
func HasTransparency(img image.Image) bool {
	if p, ok := img.(*image.Paletted); ok {
		for _, c := range p.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	}
	switch ColorMode(img) {
	case ModeRGBA, ModeLA:
		return true
	}
	return false
}

// Extract builds the metadata record for an encoded image.
//
// img must be the pixels that were encoded, fileSize the size of the
// persisted file and exif the tags read from the source. It never fails; a
// nil exif map becomes an empty one.
func Extract(img image.Image, format Format, fileSize int64, exif map[string]interface{}) document.ImageMetadata {
	bounds := img.Bounds()

	tags := make(map[string]interface{}, len(exif))
	for k, v := range exif {
		tags[k] = v
	}

	return document.ImageMetadata{
		Width:           bounds.Dx(),
		Height:          bounds.Dy(),
		Mode:            ColorMode(img),
		Format:          string(format),
		FileSize:        fileSize,
		HasTransparency: HasTransparency(img),
		EXIF:            tags,
	}
}
