package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupVideoTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Video{})
	require.NoError(t, err)

	return db
}

func newTestVideo(title string) *models.Video {
	now := time.Now()
	return &models.Video{
		Title:            title,
		OriginalFilename: title + ".mp4",
		Status:           models.VideoStatusUploading,
		UploaderID:       "user-1",
		UploadedAt:       &now,
	}
}

func TestVideoRepo_Create(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	video := newTestVideo("clip")
	err := repo.Create(ctx, video)
	require.NoError(t, err)
	assert.False(t, video.ID.IsZero())

	found, err := repo.GetByID(ctx, video.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "clip", found.Title)
	assert.Equal(t, models.VideoStatusUploading, found.Status)
}

func TestVideoRepo_GetByID_NotFound(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)

	_, err := repo.GetByID(context.Background(), models.NewULID())
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}

func TestVideoRepo_GetByStatus(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	uploading := newTestVideo("a")
	require.NoError(t, repo.Create(ctx, uploading))

	ready := newTestVideo("b")
	ready.Status = models.VideoStatusReady
	require.NoError(t, repo.Create(ctx, ready))

	got, err := repo.GetByStatus(ctx, models.VideoStatusReady)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Title)
}

func TestVideoRepo_GetByUploader(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	mine := newTestVideo("mine")
	require.NoError(t, repo.Create(ctx, mine))

	theirs := newTestVideo("theirs")
	theirs.UploaderID = "user-2"
	require.NoError(t, repo.Create(ctx, theirs))

	got, err := repo.GetByUploader(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Title)
}

func TestVideoRepo_GetStaleUploading(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	stale := newTestVideo("stale")
	require.NoError(t, repo.Create(ctx, stale))
	// Backdate the record below the repo layer so updated_at stays old.
	require.NoError(t, db.Model(&models.Video{}).
		Where("id = ?", stale.ID).
		Update("updated_at", time.Now().Add(-48*time.Hour)).Error)

	fresh := newTestVideo("fresh")
	require.NoError(t, repo.Create(ctx, fresh))

	done := newTestVideo("done")
	done.Status = models.VideoStatusReady
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, db.Model(&models.Video{}).
		Where("id = ?", done.ID).
		Update("updated_at", time.Now().Add(-48*time.Hour)).Error)

	got, err := repo.GetStaleUploading(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stale", got[0].Title)
}

func TestVideoRepo_Update(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	video := newTestVideo("clip")
	require.NoError(t, repo.Create(ctx, video))

	video.Status = models.VideoStatusProcessing
	video.Width = 1920
	video.Height = 1080
	video.AvailableQualities = models.StringList{"480p", "720p"}
	require.NoError(t, repo.Update(ctx, video))

	found, err := repo.GetByID(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusProcessing, found.Status)
	assert.Equal(t, 1080, found.Height)
	assert.Equal(t, models.StringList{"480p", "720p"}, found.AvailableQualities)
}

func TestVideoRepo_UpdateProgress(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	video := newTestVideo("clip")
	require.NoError(t, repo.Create(ctx, video))

	require.NoError(t, repo.UpdateProgress(ctx, video.ID, 42))

	found, err := repo.GetByID(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, found.ProcessingProgress)

	err = repo.UpdateProgress(ctx, models.NewULID(), 10)
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}

func TestVideoRepo_Counters(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	video := newTestVideo("clip")
	require.NoError(t, repo.Create(ctx, video))

	require.NoError(t, repo.IncrementViews(ctx, video.ID))
	require.NoError(t, repo.IncrementViews(ctx, video.ID))
	require.NoError(t, repo.IncrementLikes(ctx, video.ID, 1))

	found, err := repo.GetByID(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), found.Views)
	assert.Equal(t, int64(1), found.Likes)

	require.NoError(t, repo.IncrementLikes(ctx, video.ID, -1))
	found, err = repo.GetByID(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), found.Likes)

	assert.ErrorIs(t, repo.IncrementViews(ctx, models.NewULID()), models.ErrVideoNotFound)
}

func TestVideoRepo_DistinctTags(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	a := newTestVideo("a")
	a.Tags = models.StringList{"music", "live"}
	require.NoError(t, repo.Create(ctx, a))

	b := newTestVideo("b")
	b.Tags = models.StringList{"live", "talk"}
	require.NoError(t, repo.Create(ctx, b))

	c := newTestVideo("c")
	require.NoError(t, repo.Create(ctx, c))

	tags, err := repo.DistinctTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live", "music", "talk"}, tags)
}

func TestVideoRepo_Delete(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	video := newTestVideo("clip")
	require.NoError(t, repo.Create(ctx, video))

	require.NoError(t, repo.Delete(ctx, video.ID))

	_, err := repo.GetByID(ctx, video.ID)
	assert.ErrorIs(t, err, models.ErrVideoNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, video.ID), models.ErrVideoNotFound)
}
