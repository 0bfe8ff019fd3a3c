package session

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

// Column names required in the prompt source header.
const (
	FieldID   = "unique_id"
	FieldText = "text_sentences"
)

// Prompt is one sentence the speaker reads. It is immutable once loaded.
type Prompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MalformedInputError reports a prompt source that lacks required columns.
type MalformedInputError struct {
	Source  string
	Missing []string
	Err     error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed prompt source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("malformed prompt source %s: missing column(s) %s", e.Source, strings.Join(e.Missing, ", "))
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// LoadPrompts parses the prompt file at path and shuffles it with seed.
func LoadPrompts(path string, seed uint64) ([]Prompt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompt source: %w", err)
	}
	defer func() { _ = f.Close() }()

	prompts, err := ParsePrompts(f)
	if err != nil {
		var malformed *MalformedInputError
		if errors.As(err, &malformed) {
			malformed.Source = path
		}
		return nil, err
	}

	Shuffle(prompts, seed)
	return prompts, nil
}

// ParsePrompts reads a CSV prompt table in file order. Rows missing an id
// or text, rows whose id spans lines, and rows whose file name would repeat
// an earlier row's are skipped.
func ParsePrompts(r io.Reader) ([]Prompt, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedInputError{Source: "input", Missing: []string{FieldID, FieldText}}
		}
		return nil, &MalformedInputError{Source: "input", Err: err}
	}

	idIdx, textIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case name == FieldID && idIdx < 0:
			idIdx = i
		case name == FieldText && textIdx < 0:
			textIdx = i
		}
	}

	var missing []string
	if idIdx < 0 {
		missing = append(missing, FieldID)
	}
	if textIdx < 0 {
		missing = append(missing, FieldText)
	}
	if len(missing) > 0 {
		return nil, &MalformedInputError{Source: "input", Missing: missing}
	}

	prompts := make([]Prompt, 0, 256)
	seen := make(map[string]struct{})
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedInputError{Source: "input", Err: err}
		}
		if len(row) <= idIdx || len(row) <= textIdx {
			continue
		}

		id := strings.TrimSpace(row[idIdx])
		text := row[textIdx]
		if id == "" || strings.TrimSpace(text) == "" {
			continue
		}
		// The done ledger stores one id per line.
		if strings.ContainsAny(id, "\r\n") {
			continue
		}
		key := FileID(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		prompts = append(prompts, Prompt{ID: id, Text: text})
	}

	return prompts, nil
}

var fileIDReplacer = strings.NewReplacer("/", "_", `\`, "_")

// FileID is the form of id used in audio and transcript file names.
func FileID(id string) string {
	return fileIDReplacer.Replace(id)
}

// Shuffle permutes prompts uniformly at random. The same seed always yields
// the same order, so a session's order can be reproduced from its seed.
func Shuffle(prompts []Prompt, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(prompts), func(i, j int) {
		prompts[i], prompts[j] = prompts[j], prompts[i]
	})
}

// NewSeed returns a random shuffle seed.
func NewSeed() uint64 {
	return rand.Uint64()
}
