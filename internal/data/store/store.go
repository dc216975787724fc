package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"repoctx/internal/core/errors"
	"repoctx/internal/engine/record"
	"repoctx/internal/shared/observability"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store persists one FileRecord per path. Writing a path replaces its
// previous record and call edges whole.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Meta is stored next to a record.
type Meta struct {
	RunID       string
	ContentHash string
}

// Entry summarizes a stored record without decoding its payload.
type Entry struct {
	Path        string    `json:"path" yaml:"path"`
	Language    string    `json:"language" yaml:"language"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	ContentHash string    `json:"content_hash" yaml:"content_hash"`
	ErrorCount  int       `json:"error_count" yaml:"error_count"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, errors.New(errors.CodeValidationError, "store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, errors.Newf(errors.CodeValidationError, "store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	// busy_timeout + WAL reduce lock conflicts during watch-mode churn.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Put replaces the stored record for rec.Path.
func (s *Store) Put(ctx context.Context, rec *record.FileRecord, meta Meta) error {
	if rec == nil || strings.TrimSpace(rec.Path) == "" {
		return errors.New(errors.CodeValidationError, "record path must not be empty")
	}
	rec.EnsureCollections()
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.withRetry("put record", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM call_edges WHERE path = ?`, rec.Path); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO records (path, language, run_id, content_hash, error_count, payload, updated_at_utc)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  language=excluded.language,
  run_id=excluded.run_id,
  content_hash=excluded.content_hash,
  error_count=excluded.error_count,
  payload=excluded.payload,
  updated_at_utc=excluded.updated_at_utc
`, rec.Path, rec.Language, meta.RunID, meta.ContentHash, len(rec.Errors), string(payload),
			time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO call_edges (path, target, caller, line, call_type) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, fn := range rec.AllFunctions() {
			for _, ref := range fn.CalledBy {
				if _, err := stmt.ExecContext(ctx, rec.Path, fn.QualifiedName(), ref.FunctionName, ref.Line, string(ref.CallType)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "store record"), errors.CtxPath, rec.Path)
	}
	observability.StoreWritesTotal.WithLabelValues("put").Inc()
	return nil
}

// Get returns the stored record for path.
func (s *Store) Get(ctx context.Context, path string) (*record.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.withRetry("get record", func() error {
		return s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE path = ?`, path).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "no stored record"), errors.CtxPath, path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load record")
	}

	var rec record.FileRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "decode record"), errors.CtxPath, path)
	}
	rec.EnsureCollections()
	return &rec, nil
}

// ContentHash returns the hash stored with path, or "" when there is none.
func (s *Store) ContentHash(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash string
	err := s.withRetry("get content hash", func() error {
		return s.db.QueryRowContext(ctx, `SELECT content_hash FROM records WHERE path = ?`, path).Scan(&hash)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// Delete removes path and its call edges. It reports whether a record existed.
func (s *Store) Delete(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.withRetry("delete record", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, path)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, errors.Wrap(err, errors.CodeInternal, "delete record")
	}
	if affected > 0 {
		observability.StoreWritesTotal.WithLabelValues("delete").Inc()
	}
	return affected > 0, nil
}

// List returns every stored record summary in path order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("list records", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT path, language, run_id, content_hash, error_count, updated_at_utc
FROM records ORDER BY path ASC`)
		return qErr
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "list records")
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry Entry
			tsRaw string
		)
		if err := rows.Scan(&entry.Path, &entry.Language, &entry.RunID, &entry.ContentHash, &entry.ErrorCount, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse record timestamp %q: %w", tsRaw, err)
		}
		entry.UpdatedAt = ts.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return entries, nil
}

// Callers returns the stored callers of function in path. function is the
// qualified id: Type.method or a bare top-level name.
func (s *Store) Callers(ctx context.Context, path, function string) ([]record.CallerRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load callers", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT caller, line, call_type FROM call_edges
WHERE path = ? AND target = ?
ORDER BY line ASC, caller ASC`, path, function)
		return qErr
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "load callers")
	}
	defer rows.Close()

	refs := make([]record.CallerRef, 0)
	for rows.Next() {
		var (
			ref      record.CallerRef
			callType string
		)
		if err := rows.Scan(&ref.FunctionName, &ref.Line, &callType); err != nil {
			return nil, fmt.Errorf("scan caller row: %w", err)
		}
		ref.File = path
		ref.CallType = record.CallType(callType)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate caller rows: %w", err)
	}
	return refs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	if errors.Is(lastErr, sql.ErrNoRows) {
		return lastErr
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
