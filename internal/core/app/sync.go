package app

import (
	"context"
	"log/slog"

	"repoctx/internal/core/watcher"
	"repoctx/internal/data/store"
	"repoctx/internal/engine/parser"

	"github.com/google/uuid"
)

type SyncResult struct {
	Updated   int
	Unchanged int
	Removed   int
	Failed    int
}

// Sync applies settled watcher changes: changed files are re-extracted and
// their stored record replaced whole, removed files are dropped from the
// store. Files whose content hash matches the stored one are skipped. Each
// updated record is also written to out when it is non-nil.
func (a *App) Sync(ctx context.Context, changes []watcher.Change, out *LineWriter) (SyncResult, error) {
	var res SyncResult
	runID := uuid.NewString()

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if c.Removed {
			res.Removed++
			if a.Store == nil {
				slog.Info("file removed", "path", c.Rel)
				continue
			}
			deleted, err := a.Store.Delete(ctx, c.Rel)
			if err != nil {
				return res, err
			}
			slog.Info("file removed", "path", c.Rel, "stored", deleted)
			continue
		}

		content, err := parser.ReadSource(c.Path)
		if err != nil {
			// Deleted between the event and the flush.
			slog.Debug("changed file unreadable", "path", c.Rel, "error", err)
			continue
		}
		outcome := a.Extractor.Extract(ctx, c.Rel, a.Parser.DetectLanguage(c.Path), content)

		if a.Store != nil {
			prev, err := a.Store.ContentHash(ctx, c.Rel)
			if err != nil {
				return res, err
			}
			if prev != "" && prev == outcome.Hash {
				res.Unchanged++
				continue
			}
			if err := a.Store.Put(ctx, outcome.Record, store.Meta{RunID: runID, ContentHash: outcome.Hash}); err != nil {
				return res, err
			}
		}

		res.Updated++
		if len(outcome.Record.Errors) > 0 {
			res.Failed++
		}
		if out != nil {
			if err := out.Write(outcome.Record); err != nil {
				return res, err
			}
		}
		slog.Info("file re-extracted",
			"path", c.Rel,
			"functions", len(outcome.Record.Functions),
			"errors", len(outcome.Record.Errors),
			"cached", outcome.Cached,
		)
	}
	return res, nil
}
