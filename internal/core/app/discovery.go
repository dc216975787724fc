package app

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"repoctx/internal/core/errors"
	"repoctx/internal/shared/util"
)

// SourceFile is a discovered file: its absolute path, its slash-separated
// path relative to the discovery root, and its language.
type SourceFile struct {
	Path     string
	Rel      string
	Language string
}

// NewPathFilter builds the exclude filter for root from the batch config.
func (a *App) NewPathFilter(root string) (*util.PathFilter, error) {
	return util.NewPathFilter(root, a.Config.Batch.Exclude, a.Config.Batch.GitignoreEnabled())
}

// Discover walks root and returns every supported, non-excluded source file
// sorted by relative path.
func (a *App) Discover(root string) ([]SourceFile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFatal, "resolve "+root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, root)
		}
		return nil, errors.Wrap(err, errors.CodeFatal, "stat "+root)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.CodeValidationError, "%s is not a directory", root)
	}

	filter, err := a.NewPathFilter(abs)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "build exclude filter")
	}

	var files []SourceFile
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		rel, relErr := filter.Rel(path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if filter.Excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if !a.Parser.IsSupportedPath(path) || filter.Excluded(rel, false) {
			return nil
		}

		files = append(files, SourceFile{
			Path:     path,
			Rel:      rel,
			Language: a.Parser.DetectLanguage(path),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFatal, "walk "+root)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	slog.Debug("discovered source files", "root", abs, "count", len(files))
	return files, nil
}
