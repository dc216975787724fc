package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	coreapp "repoctx/internal/core/app"
	"repoctx/internal/core/config"
	"repoctx/internal/data/store"
	"repoctx/internal/shared/observability"
)

// runtime is the per-invocation state shared by all subcommands.
type runtime struct {
	stdout  io.Writer
	stderr  io.Writer
	opts    *globalOptions
	factory appFactory

	cfg     *config.Config
	cfgPath string
	paths   config.ResolvedPaths

	shutdownTracing func(context.Context) error
	closers         []func() error
}

func (r *runtime) setup(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("detect working directory: %w", err)
	}

	cfg, cfgPath, err := loadConfig(r.opts.configPath, cwd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(r.stderr, cfg.Logging.Level, r.opts.verbose)

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return fmt.Errorf("resolve runtime paths: %w", err)
	}
	r.cfg, r.cfgPath, r.paths = cfg, cfgPath, paths
	slog.Debug("config loaded", "path", cfgPath, "project_root", paths.ProjectRoot)

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
			Enabled:     true,
			Endpoint:    cfg.Observability.OTLPEndpoint,
			ServiceName: cfg.Observability.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		r.shutdownTracing = shutdown
	}
	return nil
}

func (r *runtime) teardown() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}
	r.closers = nil

	if r.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.shutdownTracing(ctx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
		r.shutdownTracing = nil
	}
}

// newApp builds the application and, when withStore is set, opens the
// record store at the resolved store path.
func (r *runtime) newApp(withStore bool) (*coreapp.App, error) {
	a, err := r.factory.New(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	r.closers = append(r.closers, func() error { a.Close(); return nil })

	if withStore {
		s, err := store.Open(r.paths.StorePath, r.cfg.Store.BusyTimeout)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		r.closers = append(r.closers, s.Close)
		a.WithStore(s)
		slog.Debug("record store opened", "path", s.Path())
	}
	return a, nil
}

// loadConfig honours an explicit --config path strictly. Without one it
// looks for repoctx.toml at the project root and falls back to defaults.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadOrDefault(path, false)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	root, err := config.DetectProjectRoot([]string{cwd})
	if err != nil {
		return nil, "", err
	}
	candidate := filepath.Join(root, config.DefaultFile)
	cfg, err := config.LoadOrDefault(candidate, true)
	if err != nil {
		return nil, "", err
	}
	return cfg, candidate, nil
}

// configureLogging sends logs to w, never stdout, which carries records.
func configureLogging(w io.Writer, level string, verbose bool) {
	logLevel, err := config.ParseLevel(level)
	if err != nil {
		logLevel = slog.LevelInfo
	}
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
