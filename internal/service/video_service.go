// Package service provides high-level operations over video records and
// their on-disk artifacts.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/jmylchreest/vidarr/internal/observability"
	"github.com/jmylchreest/vidarr/internal/repository"
)

// VideoService manages video records and their storage artifacts. Status
// changes go through UpdateStatus, which enforces the lifecycle transitions.
type VideoService struct {
	repo    repository.VideoRepository
	storage config.StorageConfig
	logger  *slog.Logger
}

// NewVideoService creates a new VideoService.
func NewVideoService(repo repository.VideoRepository, storage config.StorageConfig) *VideoService {
	return &VideoService{
		repo:    repo,
		storage: storage,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *VideoService) WithLogger(logger *slog.Logger) *VideoService {
	s.logger = observability.WithComponent(logger, "video-service")
	return s
}

// Create validates and persists a new video record in the uploading state.
func (s *VideoService) Create(ctx context.Context, video *models.Video) error {
	if video.Title == "" {
		video.Title = video.OriginalFilename
	}
	if video.Status == "" {
		video.Status = models.VideoStatusUploading
	}
	if video.UploadedAt == nil {
		now := time.Now()
		video.UploadedAt = &now
	}
	if err := video.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, video); err != nil {
		return err
	}
	s.logger.Info("video record created",
		slog.String("video_id", video.ID.String()),
		slog.String("title", video.Title),
	)
	return nil
}

// Get retrieves a video by ID.
func (s *VideoService) Get(ctx context.Context, id models.ULID) (*models.Video, error) {
	return s.repo.GetByID(ctx, id)
}

// GetAll retrieves all videos, newest first.
func (s *VideoService) GetAll(ctx context.Context) ([]*models.Video, error) {
	return s.repo.GetAll(ctx)
}

// GetByStatus retrieves videos in the given lifecycle state.
func (s *VideoService) GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error) {
	return s.repo.GetByStatus(ctx, status)
}

// GetByUploader retrieves an uploader's videos, newest first.
func (s *VideoService) GetByUploader(ctx context.Context, uploaderID string) ([]*models.Video, error) {
	return s.repo.GetByUploader(ctx, uploaderID)
}

// StaleUploading lists videos stuck in the uploading state whose record has
// not been touched since the given time. Such records are orphans when no
// live upload session references them.
func (s *VideoService) StaleUploading(ctx context.Context, olderThan time.Time) ([]*models.Video, error) {
	return s.repo.GetStaleUploading(ctx, olderThan)
}

// Update saves the full video record. Status is not changed through here.
func (s *VideoService) Update(ctx context.Context, video *models.Video) error {
	current, err := s.repo.GetByID(ctx, video.ID)
	if err != nil {
		return err
	}
	video.Status = current.Status
	return s.repo.Update(ctx, video)
}

// UpdateStatus moves the video through its lifecycle. Invalid transitions
// fail with models.ErrInvalidTransition. Entering ready stamps processedAt;
// entering failed records the processing error.
func (s *VideoService) UpdateStatus(ctx context.Context, id models.ULID, status models.VideoStatus, processingError string) error {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !video.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, video.Status, status)
	}

	video.Status = status
	video.ProcessingError = ""
	switch status {
	case models.VideoStatusReady:
		now := time.Now()
		video.ProcessedAt = &now
	case models.VideoStatusFailed:
		video.ProcessingError = processingError
	case models.VideoStatusProcessing:
		video.ProcessedAt = nil
	}

	if err := s.repo.Update(ctx, video); err != nil {
		return err
	}
	s.logger.Info("video status changed",
		slog.String("video_id", id.String()),
		slog.String("status", string(status)),
	)
	return nil
}

// UpdateProgress updates the processing progress hint.
func (s *VideoService) UpdateProgress(ctx context.Context, id models.ULID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return s.repo.UpdateProgress(ctx, id, progress)
}

// UpdateMetadata changes the user-editable fields only.
func (s *VideoService) UpdateMetadata(ctx context.Context, id models.ULID, title, description string, tags []string) (*models.Video, error) {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, models.ErrTitleRequired
	}
	video.Title = title
	video.Description = description
	video.Tags = models.StringList(tags)
	if err := s.repo.Update(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

// IncrementViews bumps the view counter.
func (s *VideoService) IncrementViews(ctx context.Context, id models.ULID) error {
	return s.repo.IncrementViews(ctx, id)
}

// IncrementLikes bumps the like counter.
func (s *VideoService) IncrementLikes(ctx context.Context, id models.ULID) error {
	return s.repo.IncrementLikes(ctx, id, 1)
}

// DecrementLikes lowers the like counter.
func (s *VideoService) DecrementLikes(ctx context.Context, id models.ULID) error {
	return s.repo.IncrementLikes(ctx, id, -1)
}

// Tags returns the union of tags across all videos.
func (s *VideoService) Tags(ctx context.Context) ([]string, error) {
	return s.repo.DistinctTags(ctx)
}

// Delete removes the video record and all its on-disk artifacts: the upload
// directory, the HLS output tree, and thumbnails.
func (s *VideoService) Delete(ctx context.Context, id models.ULID) error {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	for _, dir := range s.artifactDirs(video) {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove artifact directory",
				slog.String("video_id", id.String()),
				slog.String("dir", dir),
				slog.Any("error", err),
			)
		}
	}

	s.logger.Info("video deleted", slog.String("video_id", id.String()))
	return nil
}

// SetCustomThumbnail stores an uploader-provided thumbnail and points the
// record at it. ext is the file extension without the dot.
func (s *VideoService) SetCustomThumbnail(ctx context.Context, id models.ULID, ext string, r io.Reader) error {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("%w: .%s", models.ErrUnsupportedExtension, ext)
	}

	thumbDir := filepath.Join(s.storage.ThumbnailDir, id.String())
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return fmt.Errorf("creating thumbnail directory: %w", err)
	}

	path := filepath.Join(thumbDir, "custom."+ext)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating thumbnail file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing thumbnail: %w", err)
	}

	video.ThumbnailPath = thumbDir
	video.ThumbnailURL = "/thumbnails/" + id.String() + "/custom." + ext
	return s.repo.Update(ctx, video)
}

// artifactDirs lists the directories belonging to a video on disk. Paths
// recorded on the video win; otherwise the conventional layout is used.
func (s *VideoService) artifactDirs(video *models.Video) []string {
	id := video.ID.String()

	uploadDir := video.UploadPath
	if uploadDir == "" {
		uploadDir = filepath.Join(s.storage.UploadDir, id)
	}
	hlsDir := video.HLSPath
	if hlsDir == "" {
		hlsDir = filepath.Join(s.storage.HLSDir, id)
	}
	thumbDir := video.ThumbnailPath
	if thumbDir == "" {
		thumbDir = filepath.Join(s.storage.ThumbnailDir, id)
	}
	return []string{uploadDir, hlsDir, thumbDir}
}
