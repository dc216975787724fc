package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"repoctx/internal/engine/record"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or yaml)", value)
	}
}

// WriteRecord writes a single record as indented JSON or YAML.
func WriteRecord(w io.Writer, rec *record.FileRecord, format Format) error {
	rec.EnsureCollections()
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
}

// LineWriter emits records as JSON Lines.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewLineWriter(w io.Writer) *LineWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &LineWriter{enc: enc}
}

func (l *LineWriter) Write(rec *record.FileRecord) error {
	rec.EnsureCollections()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(rec)
}
