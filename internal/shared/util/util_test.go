package util

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestRecordPath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                      "",
		".":                     "",
		"./cmd/repoctx/main.go": "cmd/repoctx/main.go",
		`pkg\service.py`:        "pkg/service.py",
		"web//app.ts ":          "web/app.ts",
		"pkg/../web/app.ts":     "web/app.ts",
		"../outside.go":         "../outside.go",
	}
	for in, want := range cases {
		if got := RecordPath(in); got != want {
			t.Errorf("RecordPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapesRoot(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"..":              true,
		"../sibling/a.py": true,
		`..\sibling\a.py`: true,
		"pkg/../../x.go":  true,
		"..hidden/a.py":   false,
		"pkg/service.py":  false,
		"":                false,
	}
	for in, want := range cases {
		if got := EscapesRoot(in); got != want {
			t.Errorf("EscapesRoot(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMatchesWholePath(t *testing.T) {
	t.Parallel()

	if MatchesWholePath("*_test.go") || MatchesWholePath("node_modules") {
		t.Fatal("base-name patterns must not match whole paths")
	}
	if !MatchesWholePath("vendor/**") || !MatchesWholePath(`gen\*.py`) {
		t.Fatal("patterns with a separator must match whole paths")
	}
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()

	langs := map[string]int{"python": 2, "go": 1, "typescript": 4}
	if got, want := SortedKeys(langs), []string{"go", "python", "typescript"}; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := SortedKeys(map[string]bool{}); len(got) != 0 {
		t.Fatalf("expected no keys, got %v", got)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "reports", "summary.json")

	if err := WriteFileAtomic(name, []byte(`{"files":1}`), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(name, []byte(`{"files":2}`), 0o600); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"files":2}` {
		t.Fatalf("unexpected content %q", got)
	}
	info, err := os.Stat(name)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(name))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}
