package report

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// GDrivePublisher uploads document lists to a Google Drive folder.
type GDrivePublisher struct {
	logger     *slog.Logger
	service    *drive.Service
	parentID   string
	folderPath string
}

// NewGDrivePublisher creates a publisher storing files below parentFolderID.
// folderPath may hold ${YYYY}, ${YY}, ${MM} and ${DD} placeholders.
func NewGDrivePublisher(ctx context.Context, logger *slog.Logger, credentialsFile, parentFolderID, folderPath string) (*GDrivePublisher, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GDrivePublisher{
		logger:     logger,
		service:    service,
		parentID:   parentFolderID,
		folderPath: folderPath,
	}, nil
}

func (gd *GDrivePublisher) Publish(ctx context.Context, fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	folderID, err := gd.ensureFolderStructure(ctx, ExpandFolderPath(gd.folderPath, time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to ensure folder structure: %w", err)
	}

	name := filepath.Base(path)
	file := &drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: MimeType(name),
	}
	uploaded, err := gd.service.Files.Create(file).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	gd.logger.Debug("report uploaded", "filename", name, "id", uploaded.Id)
	return uploaded.Id, nil
}

func (gd *GDrivePublisher) ensureFolderStructure(ctx context.Context, path string) (string, error) {
	if path == "" {
		return gd.parentID, nil
	}

	current := gd.parentID
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if part == "" || part == "." {
			continue
		}

		query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			strings.ReplaceAll(part, "'", `\'`), current, folderMimeType)
		list, err := gd.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to search for folder: %w", err)
		}
		if len(list.Files) > 0 {
			current = list.Files[0].Id
			continue
		}

		created, err := gd.service.Files.Create(&drive.File{
			Name:     part,
			MimeType: folderMimeType,
			Parents:  []string{current},
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder: %w", err)
		}
		current = created.Id
	}
	return current, nil
}

// ExpandFolderPath replaces date placeholders in a folder path.
func ExpandFolderPath(path string, now time.Time) string {
	if !strings.Contains(path, "${") {
		return path
	}
	return strings.NewReplacer(
		"${YYYY}", now.Format("2006"),
		"${YY}", now.Format("06"),
		"${MM}", now.Format("01"),
		"${DD}", now.Format("02"),
	).Replace(path)
}

// MimeType guesses the upload type of a report file.
func MimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".log", ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
