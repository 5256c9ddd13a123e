package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/jmylchreest/vidarr/internal/observability"
	"github.com/shirou/gopsutil/v4/disk"
)

// sizeMismatchTolerance is how far the assembled size may drift from the
// declared size before a warning is logged.
const sizeMismatchTolerance = 1024

// Submitter hands completed uploads to the transcoding pool. Satisfied by
// *transcode.Dispatcher.
type Submitter interface {
	Submit(videoID models.ULID, inputPath string) error
}

// VideoRecords is the slice of the video service the upload path needs.
// Satisfied by *service.VideoService.
type VideoRecords interface {
	Create(ctx context.Context, video *models.Video) error
	Get(ctx context.Context, id models.ULID) (*models.Video, error)
	Update(ctx context.Context, video *models.Video) error
	Delete(ctx context.Context, id models.ULID) error
	StaleUploading(ctx context.Context, olderThan time.Time) ([]*models.Video, error)
}

// InitRequest carries the metadata for a new upload.
type InitRequest struct {
	Filename     string
	DeclaredSize int64
	TotalChunks  int
	Title        string
	Description  string
	Tags         []string
	UploaderID   string
	UploaderName string
}

// freeSpaceProbe reports free bytes on the volume holding dir. Swapped in
// tests; production uses gopsutil.
type freeSpaceProbe func(ctx context.Context, dir string) (uint64, error)

func gopsutilFreeSpace(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("reading disk usage for %s: %w", dir, err)
	}
	return usage.Free, nil
}

// Service coordinates upload admission, chunk intake, finalization, and the
// handoff to transcoding.
type Service struct {
	registry  *Registry
	chunks    *ChunkStore
	videos    VideoRecords
	submitter Submitter
	cfg       config.UploadConfig
	storage   config.StorageConfig
	logger    *slog.Logger

	// Free-space checks are cached for a short TTL so chunk-heavy uploads
	// do not pay a statfs syscall per request. The resulting staleness
	// window makes InsufficientStorage advisory, not a hard guarantee.
	probeFree  freeSpaceProbe
	freeMu     sync.Mutex
	freeBytes  uint64
	freeAsOf   time.Time
}

// NewService creates the upload service.
func NewService(videos VideoRecords, submitter Submitter, cfg config.UploadConfig, storage config.StorageConfig) *Service {
	return &Service{
		registry:  NewRegistry(),
		chunks:    NewChunkStore(cfg.MaxChunkSize),
		videos:    videos,
		submitter: submitter,
		cfg:       cfg,
		storage:   storage,
		logger:    slog.Default(),
		probeFree: gopsutilFreeSpace,
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = observability.WithComponent(logger, "upload")
	s.chunks = s.chunks.WithLogger(logger)
	return s
}

// Registry exposes the session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// InitUpload validates the request, creates the video record, and opens an
// upload session. Validation failures surface before any record or file is
// created.
func (s *Service) InitUpload(ctx context.Context, req InitRequest) (*Session, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if ext == "" || !s.extensionAllowed(ext) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedExtension, filepath.Ext(req.Filename))
	}
	if req.DeclaredSize <= 0 || req.TotalChunks <= 0 {
		return nil, fmt.Errorf("declared size and chunk count must be positive")
	}
	if req.DeclaredSize > s.cfg.MaxFileSize.Bytes() {
		return nil, fmt.Errorf("%w: %d > %d", models.ErrFileTooLarge, req.DeclaredSize, s.cfg.MaxFileSize.Bytes())
	}

	free, err := s.freeSpace(ctx)
	if err != nil {
		return nil, err
	}
	if free < uint64(req.DeclaredSize)+uint64(s.cfg.MinDiskFree.Bytes()) {
		return nil, fmt.Errorf("%w: %d bytes free", models.ErrInsufficientStorage, free)
	}

	video := &models.Video{
		Title:            req.Title,
		Description:      req.Description,
		OriginalFilename: req.Filename,
		Tags:             models.StringList(req.Tags),
		UploaderID:       req.UploaderID,
		UploaderName:     req.UploaderName,
		Status:           models.VideoStatusUploading,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.storage.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	session := NewSession(video.ID, req.Filename, req.DeclaredSize, req.TotalChunks,
		filepath.Join(s.storage.TempDir, video.ID.String()+".part"))
	if err := s.registry.Register(session); err != nil {
		return nil, err
	}

	s.logger.Info("upload session opened",
		slog.String("session_id", session.ID),
		slog.String("video_id", video.ID.String()),
		slog.String("filename", req.Filename),
		slog.Int64("declared_size", req.DeclaredSize),
		slog.Int("total_chunks", req.TotalChunks),
	)
	return session, nil
}

// Chunk streams one chunk into the session's temp file and returns overall
// progress in [0,1].
func (s *Service) Chunk(ctx context.Context, sessionID string, chunkIndex, totalChunks int, r io.Reader) (float64, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return 0, err
	}
	return s.chunks.WriteChunk(session, chunkIndex, totalChunks, r)
}

// Complete finalizes the upload and dispatches a transcode job. The
// finalized source lands at {uploadDir}/{videoId}/original.{ext}.
func (s *Service) Complete(ctx context.Context, sessionID string) (models.ULID, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return models.ULID{}, err
	}

	ext := strings.ToLower(filepath.Ext(session.Filename))
	finalPath := filepath.Join(s.storage.UploadDir, session.VideoID.String(), "original"+ext)

	size, err := s.chunks.Finalize(session, finalPath)
	if err != nil {
		return models.ULID{}, err
	}

	if diff := size - session.DeclaredSize; diff > sizeMismatchTolerance || diff < -sizeMismatchTolerance {
		s.logger.Warn("assembled size differs from declared size",
			slog.String("video_id", session.VideoID.String()),
			slog.Int64("declared", session.DeclaredSize),
			slog.Int64("actual", size),
		)
	}

	video, err := s.videos.Get(ctx, session.VideoID)
	if err != nil {
		return models.ULID{}, err
	}
	video.UploadPath = filepath.Dir(finalPath)
	video.FileSize = size
	if err := s.videos.Update(ctx, video); err != nil {
		return models.ULID{}, err
	}

	s.registry.Remove(sessionID)

	if err := s.submitter.Submit(session.VideoID, finalPath); err != nil {
		// The assembled file stays on disk; a later re-transcode can pick
		// it up once the queue drains.
		return models.ULID{}, fmt.Errorf("dispatching transcode: %w", err)
	}

	s.logger.Info("upload completed",
		slog.String("video_id", session.VideoID.String()),
		slog.Int64("size", size),
	)
	return session.VideoID, nil
}

// Cancel aborts an upload: temp file removed, session dropped, video record
// deleted.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}

	s.chunks.Cancel(session)
	s.registry.Remove(sessionID)
	if err := s.videos.Delete(ctx, session.VideoID); err != nil {
		return err
	}

	s.logger.Info("upload cancelled",
		slog.String("session_id", sessionID),
		slog.String("video_id", session.VideoID.String()),
	)
	return nil
}

// Retranscode re-runs the pipeline for a video whose original source is
// still on disk.
func (s *Service) Retranscode(ctx context.Context, videoID models.ULID) error {
	video, err := s.videos.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if video.UploadPath == "" {
		return fmt.Errorf("%w: no upload path recorded", models.ErrFileMissing)
	}

	entries, err := os.ReadDir(video.UploadPath)
	if err != nil || len(entries) == 0 {
		return fmt.Errorf("%w: %s", models.ErrFileMissing, video.UploadPath)
	}

	var sourcePath string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "original") {
			sourcePath = filepath.Join(video.UploadPath, entry.Name())
			break
		}
	}
	if sourcePath == "" {
		return fmt.Errorf("%w: no original file under %s", models.ErrFileMissing, video.UploadPath)
	}

	return s.submitter.Submit(videoID, sourcePath)
}

// ReapStale cancels sessions idle past the configured TTL, removes video
// records stuck in uploading with no live session, and returns how many
// uploads were reaped. Wired to a cron schedule in serve.
func (s *Service) ReapStale(ctx context.Context) int {
	reaped := 0
	for _, session := range s.registry.Stale(s.cfg.SessionTTL) {
		if err := s.Cancel(ctx, session.ID); err != nil {
			s.logger.Warn("failed to reap stale session",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
			continue
		}
		reaped++
	}

	// Records still in uploading past the TTL with no session are orphans
	// from a previous process; their sessions died with it.
	orphans, err := s.videos.StaleUploading(ctx, nowFunc().Add(-s.cfg.SessionTTL))
	if err != nil {
		s.logger.Warn("failed to list stale uploading videos", slog.Any("error", err))
	}
	for _, video := range orphans {
		if _, err := s.registry.GetByVideo(video.ID); err == nil {
			continue
		}
		tempPath := filepath.Join(s.storage.TempDir, video.ID.String()+".part")
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove orphaned temp file",
				slog.String("path", tempPath),
				slog.Any("error", err),
			)
		}
		if err := s.videos.Delete(ctx, video.ID); err != nil {
			s.logger.Warn("failed to delete orphaned video record",
				slog.String("video_id", video.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		s.logger.Info("reaped stale uploads", slog.Int("count", reaped))
	}
	return reaped
}

func (s *Service) extensionAllowed(ext string) bool {
	for _, allowed := range s.cfg.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// freeSpace returns the free bytes on the upload volume, cached for the
// configured TTL.
func (s *Service) freeSpace(ctx context.Context) (uint64, error) {
	s.freeMu.Lock()
	defer s.freeMu.Unlock()

	if !s.freeAsOf.IsZero() && time.Since(s.freeAsOf) < s.cfg.FreeSpaceCacheTTL {
		return s.freeBytes, nil
	}

	dir := s.storage.TempDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating temp directory: %w", err)
	}
	free, err := s.probeFree(ctx, dir)
	if err != nil {
		return 0, err
	}

	s.freeBytes = free
	s.freeAsOf = time.Now()
	return free, nil
}
