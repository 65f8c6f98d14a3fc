package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-doc-mcp/internal/config"
	"github.com/ironsheep/image-doc-mcp/internal/metrics"
	"github.com/ironsheep/image-doc-mcp/internal/pipeline"
	"github.com/ironsheep/image-doc-mcp/internal/pool"
	"github.com/ironsheep/image-doc-mcp/internal/sweeper"
	"github.com/ironsheep/image-doc-mcp/internal/workspace"
)

// app wires configuration, logging, the pool and the coordinator for one
// command invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *pool.Pool
	metrics *metrics.Metrics
	coord   *pipeline.Coordinator
}

func newApp(g *globalFlags) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.workers > 0 {
		cfg.Pool.Workers = g.workers
	}
	if g.workspace != "" {
		cfg.Workspace.Root = g.workspace
	}

	logger, err := newLogger(cfg.Log.Level, g.verbose)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	p := pool.New(cfg.Pool.Workers, cfg.Pool.QueueSize, logger.Named("pool"))
	m.RegisterPool(p)

	return &app{
		cfg:     cfg,
		logger:  logger,
		pool:    p,
		metrics: m,
		coord:   pipeline.New(cfg, p, logger.Named("pipeline"), m),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
	_ = a.logger.Sync()
}

// newLogger builds a logger that writes to stderr, leaving stdout for
// command output and MCP traffic.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	if verbose {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func (a *app) layout() (*workspace.Layout, error) {
	return a.coord.Layout("")
}

// startSweeper sweeps stale temp files now and on the configured schedule.
func (a *app) startSweeper() (*sweeper.Sweeper, error) {
	layout, err := a.layout()
	if err != nil {
		return nil, err
	}
	s, err := sweeper.New(layout, a.cfg.Workspace.SweepSchedule, a.cfg.Workspace.TempMaxAge, a.logger.Named("sweeper"), a.metrics)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// serveMetrics exposes /metrics on addr until ctx is done. An empty addr
// disables the endpoint.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
}

// output renders v as indented JSON or YAML to w, or atomically to path
// when path is set.
func output(w io.Writer, path string, asYAML bool, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	if path != "" {
		return renameio.WriteFile(path, data, 0o644)
	}
	_, err = w.Write(data)
	return err
}
