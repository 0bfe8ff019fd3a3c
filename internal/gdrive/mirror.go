package gdrive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sjawhar/voice-dataset/internal/workflow"
)

type upload struct {
	local   string
	folders []string
}

// Mirror copies saved takes and ledgers into a Drive folder, keeping the
// <speaker>/wavs, <speaker>/txt layout. Uploads run on a background worker;
// files already uploaded are updated in place.
type Mirror struct {
	uploader Uploader
	rootID   string
	log      *zap.SugaredLogger

	queue chan upload

	mu        sync.Mutex
	folderIDs map[string]string
	fileIDs   map[string]string
}

func NewMirror(ctx context.Context, credPath, folderID string, logger *zap.SugaredLogger) (*Mirror, error) {
	uploader, err := newDriveUploader(ctx, credPath)
	if err != nil {
		return nil, err
	}
	return newMirror(uploader, folderID, logger), nil
}

func newMirror(uploader Uploader, folderID string, logger *zap.SugaredLogger) *Mirror {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Mirror{
		uploader:  uploader,
		rootID:    folderID,
		log:       logger,
		queue:     make(chan upload, 128),
		folderIDs: make(map[string]string),
		fileIDs:   make(map[string]string),
	}
}

// Enqueue schedules the files of a saved take for upload without blocking.
func (m *Mirror) Enqueue(take workflow.SavedTake) {
	uploads := []upload{
		{local: take.AudioPath, folders: []string{take.Speaker, filepath.Base(filepath.Dir(take.AudioPath))}},
		{local: take.TranscriptPath, folders: []string{take.Speaker, filepath.Base(filepath.Dir(take.TranscriptPath))}},
		{local: take.MetadataPath, folders: []string{take.Speaker}},
		{local: take.DonePath, folders: []string{take.Speaker}},
	}
	for _, u := range uploads {
		if u.local == "" {
			continue
		}
		select {
		case m.queue <- u:
		default:
			m.log.Warnw("drive mirror queue full, dropping upload", "file", u.local)
		}
	}
}

// Run uploads queued files until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-m.queue:
			if err := m.Sync(u.local, u.folders...); err != nil {
				m.log.Warnw("drive mirror upload failed", "file", u.local, "error", err)
			}
		}
	}
}

// Sync uploads localPath into the nested folders under the mirror root,
// creating them as needed.
func (m *Mirror) Sync(localPath string, folders ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parentID, err := m.ensureFolders(folders)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(localPath)
	key := path.Join(append(append([]string{}, folders...), name)...)

	if fileID, ok := m.fileIDs[key]; ok {
		return m.uploader.UpdateFile(fileID, f)
	}

	fileID, err := m.uploader.CreateFile(name, parentID, mimeTypeOf(name), f)
	if err != nil {
		return err
	}
	m.fileIDs[key] = fileID
	m.log.Debugw("drive mirror created file", "file", key, "id", fileID)
	return nil
}

func (m *Mirror) ensureFolders(folders []string) (string, error) {
	parentID := m.rootID
	for i := range folders {
		key := path.Join(folders[:i+1]...)
		if id, ok := m.folderIDs[key]; ok {
			parentID = id
			continue
		}
		id, err := m.uploader.CreateFolder(folders[i], parentID)
		if err != nil {
			return "", err
		}
		m.folderIDs[key] = id
		parentID = id
	}
	return parentID, nil
}

func mimeTypeOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}
