package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"repoctx/internal/core/ports"
	"repoctx/internal/engine/parser"
	"repoctx/internal/engine/record"
	"repoctx/internal/shared/observability"

	"github.com/maypok86/otter"
)

// Outcome is one file's extraction result plus the content hash it was
// computed from.
type Outcome struct {
	Record *record.FileRecord
	Err    error
	Hash   string
	Cached bool
}

// Extractor reads and extracts files, reusing records for content it has
// already seen. A record is immutable once cached.
type Extractor struct {
	parser ports.SourceParser
	cache  otter.Cache[string, *record.FileRecord]
	salt   string
	cached bool
}

// NewExtractor creates an extractor holding up to entries records. Zero
// entries disables caching.
func NewExtractor(p ports.SourceParser, entries int) (*Extractor, error) {
	opts := p.Options()
	e := &Extractor{
		parser: p,
		salt:   string(opts.TypePolicy) + "\x00" + string(opts.CallGraph),
	}
	if entries <= 0 {
		return e, nil
	}
	cache, err := otter.MustBuilder[string, *record.FileRecord](entries).
		CollectStats().
		Build()
	if err != nil {
		return nil, err
	}
	e.cache = cache
	e.cached = true
	return e, nil
}

// ExtractPath reads absPath and extracts it under the record path recPath.
func (e *Extractor) ExtractPath(ctx context.Context, absPath, recPath, lang string) Outcome {
	if lang == "" {
		lang = e.parser.DetectLanguage(absPath)
	}
	content, err := parser.ReadSource(absPath)
	if err != nil {
		return Outcome{Record: record.Failed(recPath, lang, parser.FailureMessage(err)), Err: err}
	}
	return e.Extract(ctx, recPath, lang, content)
}

// Extract returns the record for content, consulting the cache first.
func (e *Extractor) Extract(ctx context.Context, recPath, lang string, content []byte) Outcome {
	hash := e.key(recPath, lang, content)
	if e.cached {
		if rec, ok := e.cache.Get(hash); ok {
			observability.RecordCacheHitsTotal.Inc()
			return Outcome{Record: rec, Hash: hash, Cached: true}
		}
		observability.RecordCacheMissesTotal.Inc()
	}

	res := e.parser.Extract(ctx, recPath, lang, content)
	// Only clean records are cached.
	if e.cached && res.Err == nil {
		e.cache.Set(hash, res.Record)
	}
	return Outcome{Record: res.Record, Err: res.Err, Hash: hash}
}

func (e *Extractor) key(recPath, lang string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(e.salt))
	h.Write([]byte{0})
	h.Write([]byte(recPath))
	h.Write([]byte{0})
	h.Write([]byte(lang))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// CacheSize reports the number of cached records.
func (e *Extractor) CacheSize() int {
	if !e.cached {
		return 0
	}
	return e.cache.Size()
}

func (e *Extractor) Close() {
	if e.cached {
		e.cache.Close()
	}
}
