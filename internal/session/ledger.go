package session

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LoadCompleted reads the done ledger, one prompt id per line. A missing
// ledger is an empty set.
func LoadCompleted(path string) (map[string]struct{}, error) {
	completed := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return completed, nil
		}
		return nil, fmt.Errorf("open done ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		completed[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read done ledger: %w", err)
	}

	return completed, nil
}

// Ledger is the append-only done ledger file.
type Ledger struct {
	path string
	mu   sync.Mutex
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string { return l.path }

// Append writes id as a new line and syncs it to disk before returning.
func (l *Ledger) Append(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(l.path), err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}

	if _, err := fmt.Fprintln(f, id); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", l.path, err)
	}
	return f.Close()
}
