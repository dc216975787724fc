package util

import (
	"cmp"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// RecordPath converts a root-relative path into the slash-separated form
// stored in records and matched by excludes. The root itself is "".
func RecordPath(p string) string {
	clean := path.Clean(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"))
	if clean == "." {
		return ""
	}
	return strings.TrimPrefix(clean, "./")
}

// EscapesRoot reports whether a root-relative path points above the root.
func EscapesRoot(rel string) bool {
	rel = RecordPath(rel)
	return rel == ".." || strings.HasPrefix(rel, "../")
}

// MatchesWholePath reports whether an exclude pattern is matched against the
// relative path rather than the base name.
func MatchesWholePath(pattern string) bool {
	return strings.ContainsAny(pattern, "/\\")
}

func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers polling a summary file never see it half written. Missing parent
// directories are created.
func WriteFileAtomic(name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
