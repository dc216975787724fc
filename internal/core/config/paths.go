package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	ConfigPath  string
	StorePath   string
}

// ResolvePaths anchors relative config paths at the detected project root.
func ResolvePaths(cfg *Config, start string) (ResolvedPaths, error) {
	if strings.TrimSpace(start) == "" {
		return ResolvedPaths{}, fmt.Errorf("start path must not be empty")
	}
	root, err := DetectProjectRoot([]string{start})
	if err != nil {
		return ResolvedPaths{}, err
	}
	return ResolvedPaths{
		ProjectRoot: root,
		ConfigPath:  filepath.Join(root, DefaultFile),
		StorePath:   ResolveRelative(root, cfg.Store.Path),
	}, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate until a directory holds a
// project marker. The working directory is the fallback.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		DefaultFile,
		".git",
		"go.mod",
		"package.json",
		"pyproject.toml",
		"Cargo.toml",
		"pom.xml",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
