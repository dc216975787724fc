package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathFilter_Globs(t *testing.T) {
	t.Parallel()

	f, err := NewPathFilter(t.TempDir(), []string{"**/node_modules/**", "gen/**", "*.min.js"}, false)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"node_modules", true, true},
		{"web/node_modules", true, true},
		{"web/node_modules/react/index.js", false, true},
		{"gen/api.go", false, true},
		{"src/gen/api.go", false, false},
		{"static/app.min.js", false, true},
		{"static/app.js", false, false},
		{".git", true, true},
		{"pkg/.git", true, true},
		{"", true, false},
	}
	for _, tc := range cases {
		if got := f.Excluded(tc.rel, tc.isDir); got != tc.want {
			t.Errorf("Excluded(%q, %v) = %v, want %v", tc.rel, tc.isDir, got, tc.want)
		}
	}
}

func TestPathFilter_Gitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("build/\n*.gen.py\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := NewPathFilter(root, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Excluded("build", true) {
		t.Error("expected build/ ignored")
	}
	if !f.Excluded("pkg/models.gen.py", false) {
		t.Error("expected *.gen.py ignored")
	}
	if f.Excluded("pkg/models.py", false) {
		t.Error("expected models.py kept")
	}

	off, err := NewPathFilter(root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if off.Excluded("pkg/models.gen.py", false) {
		t.Error("expected gitignore ignored when disabled")
	}
}

func TestPathFilter_MissingGitignore(t *testing.T) {
	t.Parallel()

	if _, err := NewPathFilter(t.TempDir(), nil, true); err != nil {
		t.Fatalf("missing .gitignore should not fail: %v", err)
	}
}

func TestPathFilter_InvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewPathFilter(t.TempDir(), []string{"src/[a"}, false); err == nil {
		t.Fatal("expected invalid pattern error")
	}
}

func TestPathFilter_RelAndOutsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f, err := NewPathFilter(root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	rel, err := f.Rel(filepath.Join(root, "a", "b.py"))
	if err != nil {
		t.Fatal(err)
	}
	if rel != "a/b.py" {
		t.Fatalf("expected a/b.py, got %q", rel)
	}
	if !f.ExcludedAbs(filepath.Join(filepath.Dir(root), "elsewhere.py"), false) {
		t.Fatal("expected path outside root to be excluded")
	}
	if f.ExcludedAbs(filepath.Join(root, "a", "b.py"), false) {
		t.Fatal("expected path inside root to be kept")
	}
}
