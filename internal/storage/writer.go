package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var metadataHeader = []string{"audio_file", "text"}

// Writer appends rows to the pipe-delimited metadata ledger.
type Writer struct {
	path string
	mu   sync.Mutex
}

// OpenWriter prepares the metadata ledger at path. The header row is written
// only when the file does not exist yet; created reports whether it did.
func OpenWriter(path string) (w *Writer, created bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	switch {
	case errors.Is(err, os.ErrExist):
		return &Writer{path: path}, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}

	if err := writeRow(f, metadataHeader); err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("write %s header: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, false, fmt.Errorf("close %s: %w", path, err)
	}

	return &Writer{path: path}, true, nil
}

func (w *Writer) Path() string { return w.path }

// Append writes one (audio file, text) row and syncs it before returning.
func (w *Writer) Append(audioFile, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}

	if err := writeRow(f, []string{audioFile, text}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return f.Close()
}

func writeRow(f *os.File, row []string) error {
	cw := csv.NewWriter(f)
	cw.Comma = '|'
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadMetadata returns the ledger rows after the header.
func ReadMetadata(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '|'
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}
