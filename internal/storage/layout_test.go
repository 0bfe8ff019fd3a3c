package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/data", "alice")

	cases := map[string]string{
		l.Dir():                "/data/alice",
		l.AudioPath("17"):      "/data/alice/wavs/alice_17.wav",
		l.TranscriptPath("17"): "/data/alice/txt/alice_17.txt",
		l.MetadataPath():       "/data/alice/metadata.csv",
		l.DonePath():           "/data/alice/alice_DONE_SENTENCES.txt",
		l.AudioName("a/b"):     "alice_a_b.wav",
	}
	for got, want := range cases {
		if got != filepath.FromSlash(want) {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestLayoutPrepare(t *testing.T) {
	l := NewLayout(t.TempDir(), "bob")
	if err := l.Prepare(); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	for _, dir := range []string{l.WavsDir(), l.TxtDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
}

func TestValidSpeaker(t *testing.T) {
	cases := map[string]bool{
		"alice":     true,
		"Speaker 1": true,
		"":          false,
		"   ":       false,
		"..":        false,
		"a/b":       false,
		`a\b`:       false,
		"x..y":      false,
	}
	for name, want := range cases {
		if got := ValidSpeaker(name); got != want {
			t.Fatalf("ValidSpeaker(%q) = %v, want %v", name, got, want)
		}
	}
}
