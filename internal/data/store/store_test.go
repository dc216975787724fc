package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"repoctx/internal/core/errors"
	"repoctx/internal/engine/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "records.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(path string) *record.FileRecord {
	rec := record.New(path, "python")
	helper := &record.Function{
		Name:      "helper",
		StartLine: 4,
		EndLine:   5,
		CalledBy: []record.CallerRef{
			{FunctionName: "run", File: path, Line: 2, CallType: record.CallFunction},
		},
	}
	method := &record.Function{
		Name:      "save",
		IsMethod:  true,
		ClassName: "Repo",
		StartLine: 8,
		EndLine:   9,
		CalledBy: []record.CallerRef{
			{FunctionName: "flush", File: path, Line: 12, CallType: record.CallMethod},
			{FunctionName: "run", File: path, Line: 3, CallType: record.CallAttribute},
		},
	}
	rec.Functions = append(rec.Functions, &record.Function{Name: "run", StartLine: 1, EndLine: 3}, helper)
	rec.Types = append(rec.Types, &record.Type{Name: "Repo", Kind: "class", StartLine: 7, EndLine: 12, Methods: []*record.Function{method}})
	rec.EnsureCollections()
	return rec
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("pkg/app.py")
	require.NoError(t, s.Put(ctx, rec, Meta{RunID: "run-1", ContentHash: "abc"}))

	got, err := s.Get(ctx, "pkg/app.py")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	hash, err := s.ContentHash(ctx, "pkg/app.py")
	require.NoError(t, err)
	assert.Equal(t, "abc", hash)

	hash, err = s.ContentHash(ctx, "missing.py")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestStore_GetMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope.py")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "got %v", err)
}

func TestStore_PutReplacesWholeRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sampleRecord("a.py"), Meta{RunID: "run-1"}))

	replacement := record.Failed("a.py", "python", "Parse error: invalid syntax at line 1, column 1")
	require.NoError(t, s.Put(ctx, replacement, Meta{RunID: "run-2"}))

	got, err := s.Get(ctx, "a.py")
	require.NoError(t, err)
	assert.Empty(t, got.Functions)
	assert.Len(t, got.Errors, 1)

	callers, err := s.Callers(ctx, "a.py", "helper")
	require.NoError(t, err)
	assert.Empty(t, callers, "old call edges must not survive a replace")

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-2", entries[0].RunID)
	assert.Equal(t, 1, entries[0].ErrorCount)
}

func TestStore_Callers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, sampleRecord("app.py"), Meta{}))

	callers, err := s.Callers(ctx, "app.py", "Repo.save")
	require.NoError(t, err)
	assert.Equal(t, []record.CallerRef{
		{FunctionName: "run", File: "app.py", Line: 3, CallType: record.CallAttribute},
		{FunctionName: "flush", File: "app.py", Line: 12, CallType: record.CallMethod},
	}, callers)

	callers, err = s.Callers(ctx, "app.py", "helper")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "run", callers[0].FunctionName)

	callers, err = s.Callers(ctx, "other.py", "helper")
	require.NoError(t, err)
	assert.Empty(t, callers)
}

func TestStore_DeleteAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"b.py", "a.py", "c.py"} {
		require.NoError(t, s.Put(ctx, sampleRecord(p), Meta{}))
	}

	removed, err := s.Delete(ctx, "b.py")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "b.py")
	require.NoError(t, err)
	assert.False(t, removed)

	callers, err := s.Callers(ctx, "b.py", "helper")
	require.NoError(t, err)
	assert.Empty(t, callers, "edges cascade with the record")

	entries, err := s.List(ctx)
	require.NoError(t, err)
	paths := []string{}
	for _, e := range entries {
		paths = append(paths, e.Path)
		assert.False(t, e.UpdatedAt.IsZero())
	}
	assert.Equal(t, []string{"a.py", "c.py"}, paths)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), sampleRecord("x.py"), Meta{}))
	require.NoError(t, s.Close())

	s, err = Open(path, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "x.py")
	assert.NoError(t, err)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open("  ", 0)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	dir := t.TempDir()
	_, err = Open(dir, 0)
	assert.Error(t, err)

	file := filepath.Join(dir, "plain.db")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	s, err := Open(file, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestPut_RejectsEmptyPath(t *testing.T) {
	s := openTestStore(t)
	err := s.Put(context.Background(), record.New("", "python"), Meta{})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}
