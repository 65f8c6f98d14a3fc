package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/image-doc-mcp/internal/pipeline"
	"github.com/ironsheep/image-doc-mcp/internal/server"
	"github.com/ironsheep/image-doc-mcp/internal/watcher"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Serve the image tools over the Model Context Protocol (JSON-RPC 2.0, one
message per line on stdin/stdout). Logs go to stderr. With --metrics-addr,
Prometheus metrics are served at /metrics on that address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sw, err := a.startSweeper()
			if err != nil {
				return err
			}
			defer sw.Stop()

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.Addr
			}
			a.serveMetrics(ctx, metricsAddr)

			a.logger.Info("MCP server starting",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("commit", GitCommit),
				zap.Int("workers", a.pool.Workers()),
			)
			srv := server.New(a.coord, a.logger.Named("server"), Version)
			return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var metricsAddr string
	f := &processFlags{}

	cmd := &cobra.Command{
		Use:   "watch <inbox>",
		Short: "Process images as they arrive in a directory",
		Long: `Watch an inbox directory and turn every supported image written there into
a single-page document with an auto-assigned sequence and a saved manifest.
Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
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
			if err := opts.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sw, err := a.startSweeper()
			if err != nil {
				return err
			}
			defer sw.Stop()

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.Addr
			}
			a.serveMetrics(ctx, metricsAddr)

			w, err := watcher.New(watcher.Config{
				Inbox:         args[0],
				Options:       opts,
				Debounce:      a.cfg.Watch.Debounce,
				RatePerSecond: a.cfg.Watch.RatePerSecond,
				Burst:         a.cfg.Watch.Burst,
			}, a.coord, a.logger.Named("watcher"), a.metrics)
			if err != nil {
				return err
			}

			go drain(ctx, w.Results())
			return w.Run(ctx)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fl.IntVar(&f.opts.MaxWidth, "max-width", 0, "Maximum primary width")
	fl.IntVar(&f.opts.MaxHeight, "max-height", 0, "Maximum primary height")
	fl.IntVar(&f.opts.ThumbMaxDim, "thumb-size", 0, "Maximum thumbnail side")
	fl.IntVarP(&f.opts.Quality, "quality", "q", 0, "Primary quality, 1-100")
	fl.StringVarP(&f.opts.OutputFormat, "format", "f", "", "Primary format: jpeg, png, webp, bmp, tiff")
	fl.StringVar(&f.opts.ThumbnailFormat, "thumb-format", "", "Thumbnail format")
	fl.IntVar(&f.opts.ThumbnailQuality, "thumb-quality", 0, "Thumbnail quality, 1-100")
	fl.BoolVar(&f.opts.CopyOriginal, "copy-original", false, "Keep the unmodified source in image_store")
	fl.StringVar(&f.optionsFile, "options", "", "JSON file with processing options; flags override it")
	return cmd
}

// drain discards watcher results; outcomes are already logged and counted.
func drain(ctx context.Context, results <-chan watcher.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-results:
			if !ok {
				return
			}
		}
	}
}
