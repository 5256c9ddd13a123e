package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmylchreest/vidarr/internal/models"
	"gorm.io/gorm"
)

// videoRepo implements VideoRepository using GORM.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *videoRepo {
	return &videoRepo{db: db}
}

// Create creates a new video record.
func (r *videoRepo) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetByID retrieves a video by ID.
func (r *videoRepo) GetByID(ctx context.Context, id models.ULID) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrVideoNotFound
		}
		return nil, fmt.Errorf("getting video by ID: %w", err)
	}
	return &video, nil
}

// GetAll retrieves all videos, newest first.
func (r *videoRepo) GetAll(ctx context.Context) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting all videos: %w", err)
	}
	return videos, nil
}

// GetByStatus retrieves videos in the given lifecycle state.
func (r *videoRepo) GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting videos by status: %w", err)
	}
	return videos, nil
}

// GetByUploader retrieves videos for an uploader, newest first.
func (r *videoRepo) GetByUploader(ctx context.Context, uploaderID string) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).Where("uploader_id = ?", uploaderID).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting videos by uploader: %w", err)
	}
	return videos, nil
}

// GetStaleUploading retrieves videos stuck in the uploading state.
func (r *videoRepo) GetStaleUploading(ctx context.Context, olderThan time.Time) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.VideoStatusUploading, olderThan).
		Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting stale uploading videos: %w", err)
	}
	return videos, nil
}

// Update saves the full video record.
func (r *videoRepo) Update(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Save(video).Error; err != nil {
		return fmt.Errorf("updating video: %w", err)
	}
	return nil
}

// UpdateProgress updates only the processing progress column.
func (r *videoRepo) UpdateProgress(ctx context.Context, id models.ULID, progress int) error {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", id).
		Update("processing_progress", progress)
	if result.Error != nil {
		return fmt.Errorf("updating video progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrVideoNotFound
	}
	return nil
}

// IncrementViews atomically increments the view counter.
func (r *videoRepo) IncrementViews(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", id).
		Update("views", gorm.Expr("views + 1"))
	if result.Error != nil {
		return fmt.Errorf("incrementing views: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrVideoNotFound
	}
	return nil
}

// IncrementLikes atomically adjusts the like counter by delta.
func (r *videoRepo) IncrementLikes(ctx context.Context, id models.ULID, delta int64) error {
	result := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", id).
		Update("likes", gorm.Expr("likes + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("incrementing likes: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrVideoNotFound
	}
	return nil
}

// DistinctTags returns the union of tags across all videos. Tags are stored
// as JSON arrays in a text column, so deduplication happens in memory.
func (r *videoRepo) DistinctTags(ctx context.Context) ([]string, error) {
	var lists []models.StringList
	if err := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("tags IS NOT NULL AND tags != '' AND tags != '[]'").
		Pluck("tags", &lists).Error; err != nil {
		return nil, fmt.Errorf("getting distinct tags: %w", err)
	}

	seen := make(map[string]struct{})
	var tags []string
	for _, list := range lists {
		for _, tag := range list {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// Delete removes a video record by ID.
func (r *videoRepo) Delete(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Video{})
	if result.Error != nil {
		return fmt.Errorf("deleting video: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrVideoNotFound
	}
	return nil
}
