package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/pipeline"
)

type processFlags struct {
	optionsFile string
	outputPath  string
	yaml        bool
	opts        pipeline.Options
}

func newProcessCmd(g *globalFlags) *cobra.Command {
	f := &processFlags{}

	cmd := &cobra.Command{
		Use:   "process <image>...",
		Short: "Process images into one document",
		Long: `Process one or more images into a single document, one page per image in
argument order. The document is printed as JSON (or YAML with --yaml), even
when processing fails. Exit status is 0 when the document completed, 2 for
invalid input or options, and 1 for any other failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := f.resolve(cmd, pipeline.DefaultOptions(a.cfg))
			if err != nil {
				return err
			}

			sources := make([]pipeline.Source, len(args))
			for i, path := range args {
				sources[i] = pipeline.FromPath(path)
			}

			doc, procErr := a.coord.ProcessBatch(cmd.Context(), sources, "", opts)
			if err := output(cmd.OutOrStdout(), f.outputPath, f.yaml, doc); err != nil {
				return err
			}
			return procErr
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.optionsFile, "options", "", "JSON file with processing options; flags override it")
	fl.StringVarP(&f.outputPath, "output", "o", "", "Write the document to this file instead of stdout")
	fl.BoolVar(&f.yaml, "yaml", false, "Print YAML instead of JSON")

	fl.IntVar(&f.opts.MaxWidth, "max-width", 0, "Maximum primary width")
	fl.IntVar(&f.opts.MaxHeight, "max-height", 0, "Maximum primary height")
	fl.IntVar(&f.opts.ThumbMaxDim, "thumb-size", 0, "Maximum thumbnail side")
	fl.IntVarP(&f.opts.Quality, "quality", "q", 0, "Primary quality, 1-100")
	fl.StringVarP(&f.opts.OutputFormat, "format", "f", "", "Primary format: jpeg, png, webp, bmp, tiff")
	fl.StringVar(&f.opts.ThumbnailFormat, "thumb-format", "", "Thumbnail format")
	fl.IntVar(&f.opts.ThumbnailQuality, "thumb-quality", 0, "Thumbnail quality, 1-100")
	fl.IntVar(&f.opts.SequenceStart, "seq", 0, "Sequence number of the first page")
	fl.BoolVar(&f.opts.AutoSequence, "auto-seq", false, "Continue after the highest sequence in the workspace")
	fl.BoolVar(&f.opts.Overwrite, "overwrite", false, "Replace existing output files")
	fl.StringVar(&f.opts.DocumentID, "id", "", "Document ID instead of a generated one")
	fl.StringVar(&f.opts.Title, "title", "", "Document title (default: first file name)")
	fl.BoolVar(&f.opts.CopyOriginal, "copy-original", false, "Keep the unmodified source in image_store")
	fl.BoolVar(&f.opts.SaveManifest, "save-manifest", false, "Write the document JSON under documents/")

	return cmd
}

// resolve layers the options file and then explicitly set flags over base.
func (f *processFlags) resolve(cmd *cobra.Command, base pipeline.Options) (pipeline.Options, error) {
	opts := base
	if f.optionsFile != "" {
		file, err := os.Open(f.optionsFile)
		if err != nil {
			return opts, apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("cannot read options %s", f.optionsFile))
		}
		defer file.Close()
		if opts, err = pipeline.DecodeOptions(file, base); err != nil {
			return opts, err
		}
	}

	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("max-width", func() { opts.MaxWidth = f.opts.MaxWidth })
	set("max-height", func() { opts.MaxHeight = f.opts.MaxHeight })
	set("thumb-size", func() { opts.ThumbMaxDim = f.opts.ThumbMaxDim })
	set("quality", func() { opts.Quality = f.opts.Quality })
	set("format", func() { opts.OutputFormat = f.opts.OutputFormat })
	set("thumb-format", func() { opts.ThumbnailFormat = f.opts.ThumbnailFormat })
	set("thumb-quality", func() { opts.ThumbnailQuality = f.opts.ThumbnailQuality })
	set("seq", func() { opts.SequenceStart = f.opts.SequenceStart })
	set("auto-seq", func() { opts.AutoSequence = f.opts.AutoSequence })
	set("overwrite", func() { opts.Overwrite = f.opts.Overwrite })
	set("id", func() { opts.DocumentID = f.opts.DocumentID })
	set("title", func() { opts.Title = f.opts.Title })
	set("copy-original", func() { opts.CopyOriginal = f.opts.CopyOriginal })
	set("save-manifest", func() { opts.SaveManifest = f.opts.SaveManifest })

	return opts, nil
}
