package imaging

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Quality bounds accepted by Optimize.
const (
	MinQuality = 1
	MaxQuality = 100
)

// ValidateQuality rejects quality values outside [MinQuality, MaxQuality].
func ValidateQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return apperrors.Newf(apperrors.ErrInvalidQuality, "quality %d out of range [%d,%d]", quality, MinQuality, MaxQuality)
	}
	return nil
}

// ScaleFactor returns min(maxW/w, maxH/h, 1.0). The result is never above 1,
// so callers can only scale down.
func ScaleFactor(w, h, maxW, maxH int) float64 {
	if w <= 0 || h <= 0 {
		return 1.0
	}
	s := 1.0
	if r := float64(maxW) / float64(w); r < s {
		s = r
	}
	if r := float64(maxH) / float64(h); r < s {
		s = r
	}
	return s
}

// TargetSize computes the dimensions of a w x h image scaled down to fit
// within maxW x maxH. The binding axis lands exactly on its bound and the
// other axis is floored, with a minimum of 1 pixel.
func TargetSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}

	var nw, nh int
	// Compare maxW/w with maxH/h without floating point.
	if int64(maxW)*int64(h) <= int64(maxH)*int64(w) {
		nw = maxW
		nh = int(int64(h) * int64(maxW) / int64(w))
	} else {
		nh = maxH
		nw = int(int64(w) * int64(maxH) / int64(h))
	}

	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// ResizeToBounds scales img down to fit within maxW x maxH, preserving the
// aspect ratio. Images already within bounds are returned unchanged.
// Grayscale sources stay grayscale.
func ResizeToBounds(img image.Image, maxW, maxH int) (image.Image, error) {
	if maxW <= 0 || maxH <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidBounds, "bounds %dx%d must be positive", maxW, maxH)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	nw, nh := TargetSize(w, h, maxW, maxH)
	if nw == w && nh == h {
		return img, nil
	}

	resized := imaging.Resize(img, nw, nh, imaging.Lanczos)
	return preserveGray(img, resized), nil
}

// MakeThumbnail scales img down so its larger side is at most maxDim.
func MakeThumbnail(img image.Image, maxDim int) (image.Image, error) {
	return ResizeToBounds(img, maxDim, maxDim)
}

// Optimize validates quality and encodes img to format. Identical inputs
// always produce identical bytes.
func Optimize(img image.Image, format Format, quality int) ([]byte, error) {
	if err := ValidateQuality(quality); err != nil {
		return nil, err
	}
	return Encode(img, format, quality)
}

// Variant is an encoded rendition of an image together with the pixels that
// were encoded.
type Variant struct {
	Image  image.Image
	Data   []byte
	Format Format
	Width  int
	Height int
}

// Render prepares an already sized image for format and encodes it with
// Optimize. The returned dimensions are read back from the encoded bytes.
func Render(img image.Image, format Format, quality int) (*Variant, error) {
	prepared := Prepare(img, format)

	data, err := Optimize(prepared, format, quality)
	if err != nil {
		return nil, err
	}

	w, h, _, err := Dimensions(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrEncodeFailed, fmt.Sprintf("encoded %s is not readable", format))
	}

	return &Variant{
		Image:  prepared,
		Data:   data,
		Format: format,
		Width:  w,
		Height: h,
	}, nil
}

// preserveGray converts resized back to 8-bit grayscale when the source was
// grayscale, since imaging always returns NRGBA.
func preserveGray(src image.Image, resized *image.NRGBA) image.Image {
	switch src.(type) {
	case *image.Gray, *image.Gray16:
		gray := image.NewGray(resized.Bounds())
		draw.Draw(gray, gray.Bounds(), resized, resized.Bounds().Min, draw.Src)
		return gray
	}
	return resized
}

// ResizePlan describes what processing would do to an image, without doing it.
type ResizePlan struct {
	NeedsResize         bool   `json:"needs_resize" yaml:"needs_resize"`
	NewWidth            int    `json:"new_width,omitempty" yaml:"new_width,omitempty"`
	NewHeight           int    `json:"new_height,omitempty" yaml:"new_height,omitempty"`
	NeedsModeConversion bool   `json:"needs_mode_conversion" yaml:"needs_mode_conversion"`
	TargetMode          string `json:"target_mode,omitempty" yaml:"target_mode,omitempty"`
	RecommendedFormat   Format `json:"recommended_format" yaml:"recommended_format"`
}

// Plan recommends processing for an image of the given size and mode. The
// target format is the configured default; the recommendation may differ.
func Plan(w, h int, mode string, maxW, maxH int, target Format) ResizePlan {
	plan := ResizePlan{RecommendedFormat: target}

	if nw, nh := TargetSize(w, h, maxW, maxH); nw != w || nh != h {
		plan.NeedsResize = true
		plan.NewWidth = nw
		plan.NewHeight = nh
	}

	hasAlpha := mode == "RGBA" || mode == "LA"
	switch {
	case (hasAlpha || mode == "P") && !target.SupportsAlpha():
		plan.NeedsModeConversion = true
		plan.TargetMode = "RGB"
	case mode == "CMYK":
		plan.NeedsModeConversion = true
		plan.TargetMode = "RGB"
	}

	switch {
	case hasAlpha:
		plan.RecommendedFormat = FormatWEBP
	case mode == "L":
		plan.RecommendedFormat = FormatJPEG
	}
	return plan
}
