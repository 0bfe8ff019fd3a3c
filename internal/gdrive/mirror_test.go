package gdrive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

type fakeUploader struct {
	mu      sync.Mutex
	nextID  int
	folders map[string]string // id -> "parent/name"
	files   map[string]string // id -> content
	names   map[string]string // id -> parent/name
	updates int
	failing bool
	synced  chan string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		folders: make(map[string]string),
		files:   make(map[string]string),
		names:   make(map[string]string),
		synced:  make(chan string, 16),
	}
}

func (f *fakeUploader) id() string {
	f.nextID++
	return "id-" + string(rune('a'+f.nextID))
}

func (f *fakeUploader) CreateFolder(name, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errors.New("quota exceeded")
	}
	id := f.id()
	f.folders[id] = parentID + "/" + name
	return id, nil
}

func (f *fakeUploader) CreateFile(name, parentID, _ string, content io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := io.ReadAll(content)
	id := f.id()
	f.files[id] = string(data)
	f.names[id] = parentID + "/" + name
	f.synced <- name
	return id, nil
}

func (f *fakeUploader) UpdateFile(fileID string, content io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := io.ReadAll(content)
	f.files[fileID] = string(data)
	f.updates++
	f.synced <- fileID
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestSyncCreatesFoldersOnceAndUpdatesFiles(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "alice", "metadata.csv")
	writeFile(t, local, "audio_file|text\n")

	up := newFakeUploader()
	m := newMirror(up, "root", nil)

	if err := m.Sync(local, "alice"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	writeFile(t, local, "audio_file|text\nalice_1.wav|Hello\n")
	if err := m.Sync(local, "alice"); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}

	if len(up.folders) != 1 {
		t.Fatalf("expected one folder, got %v", up.folders)
	}
	if len(up.files) != 1 || up.updates != 1 {
		t.Fatalf("expected one file updated once, got files=%v updates=%d", up.files, up.updates)
	}
	for id, content := range up.files {
		if content != "audio_file|text\nalice_1.wav|Hello\n" {
			t.Fatalf("expected latest content, got %q", content)
		}
		folderID := ""
		for fid := range up.folders {
			folderID = fid
		}
		if up.names[id] != folderID+"/metadata.csv" {
			t.Fatalf("expected file under speaker folder, got %q", up.names[id])
		}
	}
	if up.folders[firstKey(up.folders)] != "root/alice" {
		t.Fatalf("expected speaker folder under root, got %v", up.folders)
	}
}

func TestSyncFolderFailure(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "x.txt")
	writeFile(t, local, "x")

	up := newFakeUploader()
	up.failing = true
	m := newMirror(up, "root", nil)

	if err := m.Sync(local, "alice", "txt"); err == nil {
		t.Fatal("expected folder creation failure")
	}
	if len(up.files) != 0 {
		t.Fatal("expected no file upload after folder failure")
	}
}

func TestEnqueueUploadsSavedTake(t *testing.T) {
	dir := t.TempDir()
	take := workflow.SavedTake{
		Speaker:        "alice",
		Prompt:         session.Prompt{ID: "1", Text: "Hello"},
		AudioPath:      filepath.Join(dir, "alice", "wavs", "alice_1.wav"),
		TranscriptPath: filepath.Join(dir, "alice", "txt", "alice_1.txt"),
		MetadataPath:   filepath.Join(dir, "alice", "metadata.csv"),
		DonePath:       filepath.Join(dir, "alice", "alice_DONE_SENTENCES.txt"),
	}
	for _, p := range []string{take.AudioPath, take.TranscriptPath, take.MetadataPath, take.DonePath} {
		writeFile(t, p, filepath.Base(p))
	}

	up := newFakeUploader()
	m := newMirror(up, "root", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Enqueue(take)
	seen := map[string]bool{}
	for len(seen) < 4 {
		select {
		case name := <-up.synced:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, uploaded %v", seen)
		}
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.folders) != 3 {
		t.Fatalf("expected alice, alice/wavs and alice/txt folders, got %v", up.folders)
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	m := newMirror(newFakeUploader(), "root", nil)
	take := workflow.SavedTake{
		Speaker:   "alice",
		AudioPath: filepath.Join(t.TempDir(), "alice", "wavs", "alice_1.wav"),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(m.queue)+10; i++ {
			m.Enqueue(take)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked with no worker running")
	}
	if len(m.queue) != cap(m.queue) {
		t.Fatalf("expected a full queue, got %d of %d", len(m.queue), cap(m.queue))
	}
}

func firstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}
