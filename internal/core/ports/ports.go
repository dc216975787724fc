package ports

import (
	"context"

	"repoctx/internal/data/store"
	"repoctx/internal/engine/parser"
	"repoctx/internal/engine/record"
)

// SourceParser abstracts per-file extraction and language support checks.
type SourceParser interface {
	Extract(ctx context.Context, path, lang string, content []byte) *parser.Result
	DetectLanguage(path string) string
	IsSupportedPath(path string) bool
	Languages() []string
	Options() parser.Options
}

// RecordStore abstracts record persistence for batch and watch runs.
type RecordStore interface {
	Put(ctx context.Context, rec *record.FileRecord, meta store.Meta) error
	Get(ctx context.Context, path string) (*record.FileRecord, error)
	Delete(ctx context.Context, path string) (bool, error)
	List(ctx context.Context) ([]store.Entry, error)
	Callers(ctx context.Context, path, function string) ([]record.CallerRef, error)
	ContentHash(ctx context.Context, path string) (string, error)
}

var (
	_ SourceParser = (*parser.Parser)(nil)
	_ RecordStore  = (*store.Store)(nil)
)
