package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/clone"
	"github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// HSLColor represents a color in HSL space.
type HSLColor struct {
	H int `json:"h" yaml:"h"` // Hue: 0-360 degrees
	S int `json:"s" yaml:"s"` // Saturation: 0-100 percent
	L int `json:"l" yaml:"l"` // Lightness: 0-100 percent
}

// ColorFrequency is a quantized color and the share of sampled pixels it covers.
type ColorFrequency struct {
	Hex        string   `json:"hex" yaml:"hex"`
	Percentage float64  `json:"percentage" yaml:"percentage"`
	RGB        RGBColor `json:"rgb" yaml:"rgb"`
	HSL        HSLColor `json:"hsl" yaml:"hsl"`
}

// ColorAnalysis summarizes the color content of an image.
type ColorAnalysis struct {
	Mode            string           `json:"mode" yaml:"mode"`
	HasTransparency bool             `json:"has_transparency" yaml:"has_transparency"`
	DominantColor   string           `json:"dominant_color" yaml:"dominant_color"`
	DistinctColors  int              `json:"distinct_colors" yaml:"distinct_colors"`
	SampledPixels   int              `json:"sampled_pixels" yaml:"sampled_pixels"`
	Palette         []ColorFrequency `json:"palette" yaml:"palette"`
}

// maxColorSamples bounds the work done on large images; pixels are sampled
// on a regular grid when the image has more than this many.
const maxColorSamples = 250_000

// AnalyzeColors reports the dominant colors of img.
//
// Colors are quantized by dividing each 8-bit component by 16, so shades
// within 16 units are grouped. Fully transparent pixels are skipped. At most
// count palette entries are returned, most frequent first.
func AnalyzeColors(img image.Image, count int) *ColorAnalysis {
	rgba := clone.AsRGBA(img)
	bounds := rgba.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	step := 1
	if total := w * h; total > maxColorSamples {
		step = int(math.Ceil(math.Sqrt(float64(total) / maxColorSamples)))
	}

	counts := make(map[uint32]int)
	sampled := 0
	for y := 0; y < h; y += step {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x += step {
			i := x * 4
			if row[i+3] == 0 {
				continue
			}
			key := uint32(row[i]>>4)<<8 | uint32(row[i+1]>>4)<<4 | uint32(row[i+2]>>4)
			counts[key]++
			sampled++
		}
	}

	result := &ColorAnalysis{
		Mode:            ColorMode(img),
		HasTransparency: HasTransparency(img),
		DistinctColors:  len(counts),
		SampledPixels:   sampled,
		Palette:         []ColorFrequency{},
	}
	if sampled == 0 {
		return result
	}

	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if count > 0 && len(keys) > count {
		keys = keys[:count]
	}

	for _, k := range keys {
		rgb := RGBColor{
			R: uint8(k>>8&0xf) * 16,
			G: uint8(k>>4&0xf) * 16,
			B: uint8(k&0xf) * 16,
		}
		result.Palette = append(result.Palette, ColorFrequency{
			Hex:        fmt.Sprintf("#%02X%02X%02X", rgb.R, rgb.G, rgb.B),
			Percentage: float64(counts[k]) / float64(sampled) * 100,
			RGB:        rgb,
			HSL:        toHSL(rgb),
		})
	}
	result.DominantColor = result.Palette[0].Hex
	return result
}

func toHSL(c RGBColor) HSLColor {
	cf, _ := colorful.MakeColor(color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
	h, s, l := cf.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	return HSLColor{
		H: int(math.Round(h)) % 360,
		S: int(math.Round(s * 100)),
		L: int(math.Round(l * 100)),
	}
}
