package pipeline

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/ironsheep/image-doc-mcp/internal/config"
	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/imaging"
	"github.com/ironsheep/image-doc-mcp/internal/workspace"
)

// Options controls a single Process or ProcessBatch call.
type Options struct {
	MaxWidth         int    `json:"max_width" yaml:"max_width"`
	MaxHeight        int    `json:"max_height" yaml:"max_height"`
	ThumbMaxDim      int    `json:"thumb_max_dim" yaml:"thumb_max_dim"`
	Quality          int    `json:"quality" yaml:"quality"`
	OutputFormat     string `json:"output_format" yaml:"output_format"`
	ThumbnailFormat  string `json:"thumbnail_format" yaml:"thumbnail_format"`
	ThumbnailQuality int    `json:"thumbnail_quality" yaml:"thumbnail_quality"`

	// SequenceStart is the sequence of the first page. Ignored when
	// AutoSequence is set.
	SequenceStart int  `json:"sequence_start" yaml:"sequence_start"`
	AutoSequence  bool `json:"auto_sequence" yaml:"auto_sequence"`
	Overwrite     bool `json:"overwrite" yaml:"overwrite"`

	// DocumentID replaces the generated ID when set. It must be usable as a
	// file name.
	DocumentID   string `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	Title        string `json:"title,omitempty" yaml:"title,omitempty"`
	CopyOriginal bool   `json:"copy_original" yaml:"copy_original"`
	SaveManifest bool   `json:"save_manifest" yaml:"save_manifest"`
}

// DefaultOptions derives options from configuration.
func DefaultOptions(cfg *config.Config) Options {
	p := cfg.Processing
	return Options{
		MaxWidth:         p.MaxWidth,
		MaxHeight:        p.MaxHeight,
		ThumbMaxDim:      p.ThumbnailSize,
		Quality:          p.Quality,
		OutputFormat:     p.OutputFormat,
		ThumbnailFormat:  p.ThumbnailFormat,
		ThumbnailQuality: p.ThumbnailQuality,
		SequenceStart:    cfg.Workspace.SequenceBase,
		Overwrite:        cfg.Workspace.Overwrite,
		CopyOriginal:     cfg.Workspace.CopyOriginal,
		SaveManifest:     cfg.Workspace.SaveManifest,
	}
}

// DecodeOptions reads a JSON object over base. Fields absent from the input
// keep their base value; unknown fields are rejected. Empty input returns
// base unchanged.
func DecodeOptions(r io.Reader, base Options) (Options, error) {
	opts := base
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		if stderrors.Is(err, io.EOF) {
			return base, nil
		}
		return base, apperrors.Wrap(err, apperrors.ErrInvalidOption, "invalid options")
	}
	return opts, nil
}

// resolved holds validated options with parsed formats.
type resolved struct {
	Options
	output    imaging.Format
	thumbnail imaging.Format
}

// Validate checks every option without touching the filesystem.
func (o Options) Validate() error {
	_, err := o.resolve()
	return err
}

func (o Options) resolve() (*resolved, error) {
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidBounds, "max size %dx%d must be positive", o.MaxWidth, o.MaxHeight)
	}
	if o.ThumbMaxDim <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidBounds, "thumbnail size %d must be positive", o.ThumbMaxDim)
	}
	if err := imaging.ValidateQuality(o.Quality); err != nil {
		return nil, err
	}
	if err := imaging.ValidateQuality(o.ThumbnailQuality); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidQuality, "thumbnail quality %d out of range [%d,%d]",
			o.ThumbnailQuality, imaging.MinQuality, imaging.MaxQuality)
	}

	output, err := imaging.ParseFormat(o.OutputFormat)
	if err != nil {
		return nil, err
	}
	thumbnail, err := imaging.ParseFormat(o.ThumbnailFormat)
	if err != nil {
		return nil, err
	}

	if o.SequenceStart < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidOption, "sequence start %d must not be negative", o.SequenceStart)
	}
	if o.DocumentID != "" {
		if err := workspace.ValidateName(o.DocumentID); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidOption, "document id %q cannot be used as a file name", o.DocumentID)
		}
	}

	return &resolved{Options: o, output: output, thumbnail: thumbnail}, nil
}
