// Package repository defines data access interfaces for vidarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/vidarr/internal/models"
)

// VideoRepository defines operations for video persistence.
type VideoRepository interface {
	// Create creates a new video record.
	Create(ctx context.Context, video *models.Video) error
	// GetByID retrieves a video by ID. Returns models.ErrVideoNotFound
	// when no record exists.
	GetByID(ctx context.Context, id models.ULID) (*models.Video, error)
	// GetAll retrieves all videos ordered by creation time, newest first.
	GetAll(ctx context.Context) ([]*models.Video, error)
	// GetByStatus retrieves videos in the given lifecycle state.
	GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error)
	// GetByUploader retrieves videos for an uploader, newest first.
	GetByUploader(ctx context.Context, uploaderID string) ([]*models.Video, error)
	// GetStaleUploading retrieves videos stuck in uploading whose record
	// has not been touched since the given time. Used by the session reaper.
	GetStaleUploading(ctx context.Context, olderThan time.Time) ([]*models.Video, error)
	// Update saves the full video record.
	Update(ctx context.Context, video *models.Video) error
	// UpdateProgress updates only the processing progress column.
	UpdateProgress(ctx context.Context, id models.ULID, progress int) error
	// IncrementViews atomically increments the view counter.
	IncrementViews(ctx context.Context, id models.ULID) error
	// IncrementLikes atomically adjusts the like counter by delta.
	IncrementLikes(ctx context.Context, id models.ULID, delta int64) error
	// DistinctTags returns the union of tags across all videos.
	DistinctTags(ctx context.Context) ([]string, error)
	// Delete removes a video record by ID.
	Delete(ctx context.Context, id models.ULID) error
}
