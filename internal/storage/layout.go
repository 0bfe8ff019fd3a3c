package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sjawhar/voice-dataset/internal/session"
)

const (
	MetadataFile   = "metadata.csv"
	wavsDir        = "wavs"
	txtDir         = "txt"
	doneFileSuffix = "_DONE_SENTENCES.txt"
)

// Layout resolves the per-speaker output tree:
//
//	<root>/<speaker>/wavs/<speaker>_<id>.wav
//	<root>/<speaker>/txt/<speaker>_<id>.txt
//	<root>/<speaker>/metadata.csv
//	<root>/<speaker>/<speaker>_DONE_SENTENCES.txt
type Layout struct {
	Root    string
	Speaker string
}

func NewLayout(root, speaker string) Layout {
	return Layout{Root: root, Speaker: speaker}
}

func (l Layout) Dir() string { return filepath.Join(l.Root, l.Speaker) }

func (l Layout) WavsDir() string { return filepath.Join(l.Dir(), wavsDir) }

func (l Layout) TxtDir() string { return filepath.Join(l.Dir(), txtDir) }

func (l Layout) MetadataPath() string { return filepath.Join(l.Dir(), MetadataFile) }

func (l Layout) DonePath() string { return filepath.Join(l.Dir(), l.Speaker+doneFileSuffix) }

// AudioName is the file name recorded in the metadata ledger for id.
func (l Layout) AudioName(id string) string {
	return l.Speaker + "_" + session.FileID(id) + ".wav"
}

func (l Layout) AudioPath(id string) string {
	return filepath.Join(l.WavsDir(), l.AudioName(id))
}

func (l Layout) TranscriptPath(id string) string {
	return filepath.Join(l.TxtDir(), l.Speaker+"_"+session.FileID(id)+".txt")
}

// Prepare creates the speaker directory and its wavs/ and txt/ children.
func (l Layout) Prepare() error {
	for _, dir := range []string{l.WavsDir(), l.TxtDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	return nil
}

// ValidSpeaker reports whether name can be used as a single directory name.
func ValidSpeaker(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
