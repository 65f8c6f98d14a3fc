package imaging

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// exifFields is the whitelist of tags copied into page metadata.
var exifFields = map[exif.FieldName]bool{
	exif.Make:             true,
	exif.Model:            true,
	exif.DateTime:         true,
	exif.DateTimeOriginal: true,
	exif.PixelXDimension:  true,
	exif.PixelYDimension:  true,
	exif.Orientation:      true,
	exif.XResolution:      true,
	exif.YResolution:      true,
	exif.ResolutionUnit:   true,
	exif.Software:         true,
	exif.ColorSpace:       true,
	exif.WhiteBalance:     true,
}

// maxEXIFValueLen drops values that are almost always embedded binary blobs.
const maxEXIFValueLen = 200

// ReadEXIF returns the whitelisted EXIF tags found in data.
//
// Collection is best-effort: missing, malformed or unsupported EXIF blocks
// yield an empty map, never an error.
func ReadEXIF(data []byte) (tags map[string]interface{}) {
	tags = map[string]interface{}{}

	defer func() {
		// goexif can panic on truncated IFDs.
		if r := recover(); r != nil {
			tags = map[string]interface{}{}
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return tags
	}

	_ = x.Walk(exifWalker(func(name exif.FieldName, tag *tiff.Tag) {
		if !exifFields[name] {
			return
		}
		if v, ok := tagValue(tag); ok {
			tags[string(name)] = v
		}
	}))
	return tags
}

type exifWalker func(name exif.FieldName, tag *tiff.Tag)

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w(name, tag)
	return nil
}

// tagValue converts a single-valued tag to a JSON-friendly value.
func tagValue(tag *tiff.Tag) (interface{}, bool) {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil || len(s) > maxEXIFValueLen {
			return nil, false
		}
		return s, true
	case tiff.IntVal:
		if tag.Count != 1 {
			break
		}
		v, err := tag.Int(0)
		if err != nil {
			return nil, false
		}
		return v, true
	case tiff.RatVal:
		if tag.Count != 1 {
			break
		}
		r, err := tag.Rat(0)
		if err != nil {
			return nil, false
		}
		if r.IsInt() {
			return r.Num().Int64(), true
		}
		f, _ := r.Float64()
		return f, true
	}

	s := tag.String()
	if len(s) > maxEXIFValueLen {
		return nil, false
	}
	return s, true
}
