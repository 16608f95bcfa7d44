package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/sevigo/review-scraper/internal/core"
)

// JSONFileSink writes every saved change into a single JSON array file.
type JSONFileSink struct {
	path   string
	logger *slog.Logger

	file    *os.File
	w       *bufio.Writer
	written int
}

// NewJSONFileSink returns a sink writing to path. The file is truncated when
// the sink is opened.
func NewJSONFileSink(path string, logger *slog.Logger) *JSONFileSink {
	return &JSONFileSink{path: path, logger: logger}
}

func (s *JSONFileSink) Name() string { return "json:" + s.path }

// Path returns the output file path.
func (s *JSONFileSink) Path() string { return s.path }

// Open truncates the output file and starts the array.
func (s *JSONFileSink) Open(_ context.Context) error {
	if s.file != nil {
		return fmt.Errorf("json sink %s is already open", s.path)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.path, err)
	}
	s.file = f
	s.w = bufio.NewWriter(f)
	s.written = 0

	if _, err := s.w.WriteString("["); err != nil {
		_ = s.closeFile()
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// SaveChange appends change to the array. It returns 1 when the change was
// written and 0 otherwise.
func (s *JSONFileSink) SaveChange(_ context.Context, change *core.Change) int {
	if s.w == nil {
		s.logger.Error("json sink is not open", "path", s.path, "change", change.Number)
		return 0
	}
	change.StripPaginationMarker()

	data, err := encodeIndented(change)
	if err != nil {
		s.logger.Error("failed to encode change", "path", s.path, "change", change.Number, "error", err)
		return 0
	}

	if s.written > 0 {
		data = append([]byte(",\n"), data...)
	}
	if _, err := s.w.Write(data); err != nil {
		s.logger.Error("failed to write change", "path", s.path, "change", change.Number, "error", err)
		return 0
	}
	s.written++
	return 1
}

// Close terminates the array and closes the file. Calling Close on a sink
// that is not open is a no-op.
func (s *JSONFileSink) Close() error {
	if s.file == nil {
		return nil
	}
	_, werr := s.w.WriteString("]\n")
	if err := s.closeFile(); err != nil {
		return err
	}
	if werr != nil {
		return fmt.Errorf("failed to finish %s: %w", s.path, werr)
	}
	s.logger.Info("json output written", "path", s.path, "changes", s.written)
	return nil
}

func (s *JSONFileSink) closeFile() error {
	f, w := s.file, s.w
	s.file, s.w = nil, nil

	ferr := w.Flush()
	cerr := f.Close()
	if ferr != nil {
		return fmt.Errorf("failed to flush %s: %w", s.path, ferr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, cerr)
	}
	return nil
}

func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
