package app

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"

	"repoctx/internal/core/errors"
	"repoctx/internal/data/store"
	"repoctx/internal/shared/observability"
	"repoctx/internal/shared/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Progress receives batch progress. Implementations must be safe for
// concurrent Advance calls.
type Progress interface {
	Start(total int)
	Advance(rel string)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int)      {}
func (nopProgress) Advance(string) {}
func (nopProgress) Finish()        {}

type BatchOptions struct {
	// Workers overrides the configured worker count when positive.
	Workers int
	// Output receives one JSON line per record in path order. Nil writes nothing.
	Output   io.Writer
	Progress Progress
}

type BatchSummary struct {
	RunID     string         `json:"run_id"`
	Root      string         `json:"root"`
	Files     int            `json:"files"`
	Failed    int            `json:"failed"`
	Cached    int            `json:"cached"`
	Stored    int            `json:"stored"`
	Languages map[string]int `json:"languages"`
	Duration  time.Duration  `json:"duration"`
	HeapMB    uint64         `json:"heap_mb"`
}

// Batch extracts every supported file under root. Files carrying errors are
// reported in their records and never fail the run; only discovery, output
// and store failures do. Cancelling ctx stops scheduling new files.
func (a *App) Batch(ctx context.Context, root string, opts BatchOptions) (*BatchSummary, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Batch")
	defer span.End()
	start := time.Now()

	files, err := a.Discover(root)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "batch")
	}

	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("files", len(files)),
	)
	slog.Info("batch started", "run_id", runID, "root", root, "files", len(files))

	progress := opts.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = a.Config.Batch.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	outcomes := make([]*Outcome, len(files))
	progress.Start(len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out := a.Extractor.ExtractPath(gctx, f.Path, f.Rel, f.Language)
			outcomes[i] = &out
			progress.Advance(f.Rel)
			return nil
		})
	}
	_ = g.Wait()
	progress.Finish()

	summary := &BatchSummary{
		RunID:     runID,
		Root:      root,
		Languages: make(map[string]int),
	}

	var lines *LineWriter
	if opts.Output != nil {
		lines = NewLineWriter(opts.Output)
	}
	for i, out := range outcomes {
		if out == nil {
			continue
		}
		summary.Files++
		summary.Languages[files[i].Language]++
		if out.Cached {
			summary.Cached++
		}
		if len(out.Record.Errors) > 0 {
			summary.Failed++
		}
		if lines != nil {
			if err := lines.Write(out.Record); err != nil {
				return summary, errors.Wrap(err, errors.CodeFatal, "write record")
			}
		}
		if a.Store != nil {
			if err := a.Store.Put(ctx, out.Record, store.Meta{RunID: runID, ContentHash: out.Hash}); err != nil {
				return summary, err
			}
			summary.Stored++
		}
	}

	summary.Duration = time.Since(start)
	summary.HeapMB = util.HeapAllocMB()
	observability.BatchDuration.Observe(summary.Duration.Seconds())
	span.SetAttributes(attribute.Int("failed", summary.Failed), attribute.Int("cached", summary.Cached))

	if err := ctx.Err(); err != nil {
		slog.Warn("batch cancelled", "run_id", runID, "completed", summary.Files, "total", len(files))
		return summary, errors.Wrap(err, errors.CodeInternal, "batch cancelled")
	}
	slog.Info("batch finished",
		"run_id", runID,
		"files", summary.Files,
		"failed", summary.Failed,
		"cached", summary.Cached,
		"duration", summary.Duration,
	)
	return summary, nil
}
