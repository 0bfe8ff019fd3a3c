package gdrive

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Uploader is the subset of the Drive API the mirror needs.
type Uploader interface {
	CreateFolder(name, parentID string) (string, error)
	CreateFile(name, parentID, mimeType string, content io.Reader) (string, error)
	UpdateFile(fileID string, content io.Reader) error
}

type driveUploader struct {
	service *drive.Service
}

func newDriveUploader(ctx context.Context, credPath string) (*driveUploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &driveUploader{service: svc}, nil
}

func (d *driveUploader) CreateFolder(name, parentID string) (string, error) {
	folder, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("drive create folder %s: %w", name, err)
	}
	return folder.Id, nil
}

func (d *driveUploader) CreateFile(name, parentID, mimeType string, content io.Reader) (string, error) {
	file, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).Media(content).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("drive create %s: %w", name, err)
	}
	return file.Id, nil
}

func (d *driveUploader) UpdateFile(fileID string, content io.Reader) error {
	if _, err := d.service.Files.Update(fileID, &drive.File{}).Media(content).Do(); err != nil {
		return fmt.Errorf("drive update: %w", err)
	}
	return nil
}
