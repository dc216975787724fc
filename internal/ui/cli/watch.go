package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	coreapp "repoctx/internal/core/app"
	"repoctx/internal/core/watcher"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	store   bool
	metrics bool
	initial bool
}

func newWatchCommand(rt *runtime) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-extract files as they change",
		Long: `Watch follows dir recursively. Each settled change re-extracts the file,
replaces its stored record whole and writes the record as a JSON line to
stdout. Deleted files are removed from the store.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), rt, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.store, "store", false, "persist records in the record store even if disabled in config")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "serve /metrics and /health even if disabled in config")
	cmd.Flags().BoolVar(&opts.initial, "initial", false, "run a full batch extraction before watching")
	return cmd
}

func runWatch(ctx context.Context, rt *runtime, opts *watchOptions, dir string) error {
	a, err := rt.newApp(opts.store || rt.cfg.Store.Enabled)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	lines := coreapp.NewLineWriter(rt.stdout)
	if opts.initial {
		summary, err := a.Batch(ctx, root, coreapp.BatchOptions{Output: rt.stdout})
		if err != nil {
			return err
		}
		slog.Info("initial extraction complete", "files", summary.Files, "failed", summary.Failed)
	}

	if opts.metrics || rt.cfg.Observability.Enabled {
		server := NewObservabilityServer(rt.cfg.Observability.Address, coreapp.NewHealthService(a))
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	filter, err := a.NewPathFilter(root)
	if err != nil {
		return usageError("invalid exclude configuration: %v", err)
	}
	w, err := watcher.NewWatcher(watcher.Options{
		Filter:        filter,
		Supported:     a.Parser.IsSupportedPath,
		Debounce:      rt.cfg.Watch.Debounce,
		RatePerSecond: rt.cfg.Watch.RatePerSecond,
		Burst:         rt.cfg.Watch.Burst,
	}, func(ctx context.Context, changes []watcher.Change) {
		res, err := a.Sync(ctx, changes, lines)
		if err != nil {
			slog.Error("sync failed", "error", err)
			return
		}
		slog.Debug("changes applied",
			"updated", res.Updated,
			"unchanged", res.Unchanged,
			"removed", res.Removed,
			"failed", res.Failed,
		)
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
