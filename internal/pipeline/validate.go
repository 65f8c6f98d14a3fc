package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
)

// ValidationReport describes whether a file can be processed and what
// processing would do to it. Nothing is written.
type ValidationReport struct {
	Valid     bool   `json:"valid" yaml:"valid"`
	Path      string `json:"path" yaml:"path"`
	FileSize  int64  `json:"file_size" yaml:"file_size"`
	Extension string `json:"extension" yaml:"extension"`

	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty" yaml:"error_code,omitempty"`

	Image       *imaging.ImageInfo     `json:"image,omitempty" yaml:"image,omitempty"`
	AspectRatio float64                `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	TotalPixels int                    `json:"total_pixels,omitempty" yaml:"total_pixels,omitempty"`
	Megapixels  float64                `json:"megapixels,omitempty" yaml:"megapixels,omitempty"`
	EXIF        map[string]interface{} `json:"exif,omitempty" yaml:"exif,omitempty"`
	Plan        *imaging.ResizePlan    `json:"plan,omitempty" yaml:"plan,omitempty"`
	Colors      *imaging.ColorAnalysis `json:"colors,omitempty" yaml:"colors,omitempty"`
}

// Validate inspects the file at path. The report is always returned; the
// error is non-nil exactly when the file cannot be processed.
func (c *Coordinator) Validate(ctx context.Context, path string) (*ValidationReport, error) {
	report := &ValidationReport{
		Path:      path,
		Extension: strings.ToLower(filepath.Ext(path)),
	}

	reject := func(err error) (*ValidationReport, error) {
		report.Error = err.Error()
		report.ErrorCode = apperrors.GetCode(err)
		c.logger.Debug("validation failed", zap.String("path", path), zap.String("code", report.ErrorCode))
		return report, err
	}

	data, err := imaging.LoadFile(path, c.cfg.Processing.MaxFileSize)
	if err != nil {
		return reject(err)
	}
	report.FileSize = int64(len(data))

	if err := ctx.Err(); err != nil {
		return reject(classify(err))
	}

	decoded, err := imaging.Decode(data, c.cfg.Processing.EnableEXIF)
	if err != nil {
		return reject(err)
	}

	info := imaging.Inspect(decoded, report.FileSize)
	report.Valid = true
	report.Image = info
	report.TotalPixels = info.Width * info.Height
	report.Megapixels = round(float64(report.TotalPixels)/1_000_000, 2)
	if info.Height > 0 {
		report.AspectRatio = round(float64(info.Width)/float64(info.Height), 3)
	}
	if len(decoded.EXIF) > 0 {
		report.EXIF = decoded.EXIF
	}

	target, err := imaging.ParseFormat(c.cfg.Processing.OutputFormat)
	if err != nil {
		target = imaging.FormatWEBP
	}
	plan := imaging.Plan(info.Width, info.Height, info.Mode,
		c.cfg.Processing.MaxWidth, c.cfg.Processing.MaxHeight, target)
	report.Plan = &plan
	report.Colors = imaging.AnalyzeColors(decoded.Image, 5)

	return report, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
