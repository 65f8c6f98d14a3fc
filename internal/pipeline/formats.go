package pipeline

import (
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
)

// FormatInfo describes one output format.
type FormatInfo struct {
	Name          imaging.Format `json:"name" yaml:"name"`
	Extension     string         `json:"extension" yaml:"extension"`
	SupportsAlpha bool           `json:"supports_alpha" yaml:"supports_alpha"`
	Lossless      bool           `json:"lossless" yaml:"lossless"`
	UsesQuality   bool           `json:"uses_quality" yaml:"uses_quality"`
	Note          string         `json:"note,omitempty" yaml:"note,omitempty"`
}

// FormatsReport lists accepted inputs, available outputs and the defaults
// in effect.
type FormatsReport struct {
	InputExtensions []string     `json:"input_extensions" yaml:"input_extensions"`
	OutputFormats   []FormatInfo `json:"output_formats" yaml:"output_formats"`
	Defaults        Options      `json:"defaults" yaml:"defaults"`
	MaxFileSize     int64        `json:"max_file_size" yaml:"max_file_size"`
}

// Formats reports what the coordinator accepts and produces.
func (c *Coordinator) Formats() *FormatsReport {
	report := &FormatsReport{
		InputExtensions: append([]string(nil), imaging.SupportedExtensions...),
		Defaults:        DefaultOptions(c.cfg),
		MaxFileSize:     c.cfg.Processing.MaxFileSize,
	}
	for _, f := range imaging.SupportedFormats() {
		info := FormatInfo{
			Name:          f,
			Extension:     f.Extension(),
			SupportsAlpha: f.SupportsAlpha(),
			Lossless:      f != imaging.FormatJPEG,
			UsesQuality:   f == imaging.FormatJPEG,
		}
		if f == imaging.FormatWEBP {
			info.Note = "encoded lossless; quality must be 1-100 but does not change the output"
		}
		report.OutputFormats = append(report.OutputFormats, info)
	}
	return report
}
