package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/ffmpeg"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/jmylchreest/vidarr/internal/observability"
)

// thumbnailSeekSeconds is the default frame offset for thumbnails. Sources
// shorter than this get a frame-0 retry.
const thumbnailSeekSeconds = 5

// Runner executes supervised subprocesses. Satisfied by *ffmpeg.Supervisor.
type Runner interface {
	Run(ctx context.Context, task ffmpeg.Task) (*ffmpeg.Result, error)
}

// MediaProber extracts stream metadata. Satisfied by *ffmpeg.Prober.
type MediaProber interface {
	Probe(ctx context.Context, taskKey, path string) (*ffmpeg.MediaInfo, error)
}

// VideoStore is the slice of the video service the pipeline mutates records
// through. Satisfied by *service.VideoService.
type VideoStore interface {
	Get(ctx context.Context, id models.ULID) (*models.Video, error)
	Update(ctx context.Context, video *models.Video) error
	UpdateStatus(ctx context.Context, id models.ULID, status models.VideoStatus, processingError string) error
	UpdateProgress(ctx context.Context, id models.ULID, progress int) error
}

// Pipeline converts one uploaded source file into a playable HLS asset.
// A pipeline instance is stateless and safe for concurrent runs on
// different videos.
type Pipeline struct {
	store   VideoStore
	runner  Runner
	prober  MediaProber
	cfg     config.TranscodingConfig
	storage config.StorageConfig
	logger  *slog.Logger
}

// NewPipeline creates a transcoding pipeline.
func NewPipeline(store VideoStore, runner Runner, prober MediaProber, cfg config.TranscodingConfig, storage config.StorageConfig) *Pipeline {
	return &Pipeline{
		store:   store,
		runner:  runner,
		prober:  prober,
		cfg:     cfg,
		storage: storage,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = observability.WithComponent(logger, "pipeline")
	return p
}

// Transcode runs the full pipeline for one video. The video record never
// stays in processing: any error or panic past the initial status change
// drives it to failed with the error recorded, and the input file is
// removed best-effort.
func (p *Pipeline) Transcode(ctx context.Context, videoID models.ULID, inputPath string) (err error) {
	log := observability.WithVideoID(p.logger, videoID.String())

	// A missing record aborts before any subprocess is spawned.
	video, err := p.store.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("loading video record: %w", err)
	}
	if err := p.store.UpdateStatus(ctx, videoID, models.VideoStatusProcessing, ""); err != nil {
		return fmt.Errorf("entering processing state: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcode panicked: %v", r)
		}
		if err != nil {
			p.fail(ctx, log, videoID, inputPath, err)
		}
	}()

	return p.run(ctx, log, video, inputPath)
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, video *models.Video, inputPath string) error {
	videoID := video.ID

	// A re-transcode starts from a clean slate: renditions from a prior
	// run are cleared on disk per quality, so the record must not keep
	// advertising them.
	video.AvailableQualities = nil

	p.generateThumbnail(ctx, log, video, inputPath)
	_ = p.store.UpdateProgress(ctx, videoID, 10)

	info := p.probe(ctx, log, videoID, inputPath)
	_ = p.store.UpdateProgress(ctx, videoID, 20)

	if stat, err := os.Stat(inputPath); err == nil {
		video.FileSize = stat.Size()
	}
	video.Width = info.Width
	video.Height = info.Height
	video.DurationSeconds = info.DurationSeconds
	if err := p.store.Update(ctx, video); err != nil {
		return fmt.Errorf("persisting probed metadata: %w", err)
	}

	profiles := ProfilesFor(p.cfg.Qualities, info.Height)
	if len(profiles) == 0 {
		return fmt.Errorf("no eligible quality profiles for height %d", info.Height)
	}

	hlsDir := filepath.Join(p.storage.HLSDir, videoID.String())
	if err := os.MkdirAll(hlsDir, 0o755); err != nil {
		return fmt.Errorf("creating HLS directory: %w", err)
	}

	var succeeded []QualityProfile
	for i, profile := range profiles {
		if err := p.encodeQuality(ctx, log, videoID, inputPath, hlsDir, profile); err != nil {
			// A single failed quality never aborts the job.
			log.Error("quality encode failed",
				slog.String("quality", profile.Label),
				slog.Any("error", err),
			)
		} else {
			succeeded = append(succeeded, profile)
			video.AddQuality(profile.Label)
		}
		_ = p.store.UpdateProgress(ctx, videoID, 20+70*(i+1)/len(profiles))
	}

	if len(succeeded) == 0 {
		return fmt.Errorf("all %d quality encodes failed", len(profiles))
	}

	if _, err := WriteMasterManifest(hlsDir, succeeded); err != nil {
		return err
	}

	video.HLSPath = hlsDir
	video.MasterPlaylistURL = "/hls/" + videoID.String() + "/" + MasterPlaylistName
	if err := p.store.Update(ctx, video); err != nil {
		return fmt.Errorf("persisting transcode results: %w", err)
	}

	// Reclaim the original source; playback only needs the HLS output.
	if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove original source", slog.Any("error", err))
	}

	if err := p.store.UpdateStatus(ctx, videoID, models.VideoStatusReady, ""); err != nil {
		return fmt.Errorf("entering ready state: %w", err)
	}
	_ = p.store.UpdateProgress(ctx, videoID, 100)

	log.Info("transcode complete",
		slog.Int("qualities", len(succeeded)),
		slog.Int("source_height", info.Height),
	)
	return nil
}

// generateThumbnail extracts a single frame. Failure is logged and the
// pipeline continues without a thumbnail update.
func (p *Pipeline) generateThumbnail(ctx context.Context, log *slog.Logger, video *models.Video, inputPath string) {
	videoID := video.ID
	thumbDir := filepath.Join(p.storage.ThumbnailDir, videoID.String())
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		log.Warn("creating thumbnail directory failed", slog.Any("error", err))
		return
	}
	thumbPath := filepath.Join(thumbDir, ThumbnailFileName)

	seek := thumbnailSeekSeconds
	_, err := p.runner.Run(ctx, ffmpeg.Task{
		Key:     videoID.String() + "_thumbnail",
		Binary:  p.cfg.FFmpegPath,
		Args:    thumbnailArgs(inputPath, thumbPath, seek),
		Timeout: p.cfg.ThumbnailTimeout,
	})
	if err != nil {
		// A source shorter than the seek offset produces no frame; retry
		// from the start before giving up.
		_, err = p.runner.Run(ctx, ffmpeg.Task{
			Key:     videoID.String() + "_thumbnail",
			Binary:  p.cfg.FFmpegPath,
			Args:    thumbnailArgs(inputPath, thumbPath, 0),
			Timeout: p.cfg.ThumbnailTimeout,
		})
	}
	if err != nil {
		log.Warn("thumbnail generation failed", slog.Any("error", err))
		return
	}

	video.ThumbnailPath = thumbDir
	video.ThumbnailURL = "/thumbnails/" + videoID.String() + "/" + ThumbnailFileName
	if updErr := p.store.Update(ctx, video); updErr != nil {
		log.Warn("persisting thumbnail path failed", slog.Any("error", updErr))
	}
}

// probe extracts stream metadata, falling back to conservative defaults on
// any probe failure rather than aborting.
func (p *Pipeline) probe(ctx context.Context, log *slog.Logger, videoID models.ULID, inputPath string) *ffmpeg.MediaInfo {
	info, err := p.prober.Probe(ctx, videoID.String()+"_probe", inputPath)
	if err != nil {
		log.Warn("probe failed, using fallback dimensions", slog.Any("error", err))
		return &ffmpeg.MediaInfo{Width: 1920, Height: 1080, DurationSeconds: 0}
	}
	return info
}

// encodeQuality runs the encoder for one tier. The quality directory is
// recreated on entry so re-transcodes are idempotent, and partial output is
// removed on failure.
func (p *Pipeline) encodeQuality(ctx context.Context, log *slog.Logger, videoID models.ULID, inputPath, hlsDir string, profile QualityProfile) error {
	qualityDir := filepath.Join(hlsDir, profile.Label)
	if err := os.RemoveAll(qualityDir); err != nil {
		return fmt.Errorf("clearing quality directory: %w", err)
	}
	if err := os.MkdirAll(qualityDir, 0o755); err != nil {
		return fmt.Errorf("creating quality directory: %w", err)
	}

	log.Info("encoding quality",
		slog.String("quality", profile.Label),
		slog.String("resolution", profile.Resolution()),
	)

	_, err := p.runner.Run(ctx, ffmpeg.Task{
		Key:     videoID.String() + "_" + profile.Label,
		Binary:  p.cfg.FFmpegPath,
		Args:    encodeArgs(inputPath, qualityDir, profile, p.cfg.SegmentDuration),
		Timeout: p.cfg.EncodeTimeout,
	})
	if err != nil {
		if rmErr := os.RemoveAll(qualityDir); rmErr != nil {
			log.Warn("failed to remove partial quality output",
				slog.String("quality", profile.Label),
				slog.Any("error", rmErr),
			)
		}
		return err
	}
	return nil
}

// fail drives the video to the failed state with the error recorded and
// removes the input file best-effort.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, videoID models.ULID, inputPath string, cause error) {
	observability.WithError(log, cause).Error("transcode failed")

	if err := p.store.UpdateStatus(ctx, videoID, models.VideoStatusFailed, cause.Error()); err != nil {
		log.Error("failed to record failure state", slog.Any("error", err))
	}
	if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove input after failure", slog.Any("error", err))
	}
}
