package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/database"
	"github.com/jmylchreest/vidarr/internal/ffmpeg"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/jmylchreest/vidarr/internal/repository"
	"github.com/jmylchreest/vidarr/internal/service"
	"github.com/jmylchreest/vidarr/internal/transcode"
)

var transcodeCmd = &cobra.Command{
	Use:   "transcode <video-id> <input-file>",
	Short: "Run the transcoding pipeline once for a video",
	Long: `Run the full transcoding pipeline synchronously for one video
record and source file. Useful for re-transcoding a video whose original
is still on disk, or for recovering from a failed run.`,
	Args: cobra.ExactArgs(2),
	RunE: runTranscode,
}

func init() {
	rootCmd.AddCommand(transcodeCmd)
}

func runTranscode(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	videoID, err := models.ParseULID(args[0])
	if err != nil {
		return fmt.Errorf("parsing video id: %w", err)
	}
	inputPath := args[1]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	ctx := cmd.Context()

	detector := ffmpeg.NewBinaryDetector(cfg.Transcoding.FFmpegPath, cfg.Transcoding.FFprobePath)
	binaries, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg binaries: %w", err)
	}
	cfg.Transcoding.FFmpegPath = binaries.FFmpegPath
	cfg.Transcoding.FFprobePath = binaries.FFprobePath

	videoService := service.NewVideoService(repository.NewVideoRepository(db.DB), cfg.Storage).
		WithLogger(logger)

	supervisor := ffmpeg.NewSupervisor(logger)
	prober := ffmpeg.NewProber(cfg.Transcoding.FFprobePath, supervisor).
		WithTimeout(cfg.Transcoding.ProbeTimeout).
		WithLogger(logger)

	pipeline := transcode.NewPipeline(videoService, supervisor, prober, cfg.Transcoding, cfg.Storage).
		WithLogger(logger)

	if err := pipeline.Transcode(ctx, videoID, inputPath); err != nil {
		return fmt.Errorf("transcoding %s: %w", videoID, err)
	}

	video, err := videoService.Get(ctx, videoID)
	if err != nil {
		return err
	}
	logger.Info("transcode finished",
		slog.String("video_id", videoID.String()),
		slog.String("status", string(video.Status)),
		slog.Any("qualities", video.AvailableQualities),
	)
	return nil
}
