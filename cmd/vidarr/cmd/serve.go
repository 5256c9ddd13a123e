package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/database"
	"github.com/jmylchreest/vidarr/internal/ffmpeg"
	"github.com/jmylchreest/vidarr/internal/repository"
	"github.com/jmylchreest/vidarr/internal/service"
	"github.com/jmylchreest/vidarr/internal/transcode"
	"github.com/jmylchreest/vidarr/internal/upload"
	"github.com/jmylchreest/vidarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vidarr intake and transcoding runtime",
	Long: `Run the long-lived vidarr runtime: the transcoding worker pool,
the stale upload-session reaper, and the upload intake services that a
frontend embeds or drives over its own transport.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("database", "vidarr.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().Int("workers", 2, "Number of concurrent transcoding workers")
	serveCmd.Flags().Int("queue-size", 8, "Transcode admission queue capacity")
	serveCmd.Flags().String("ffmpeg", "", "Path to the ffmpeg binary (empty = search PATH)")
	serveCmd.Flags().String("ffprobe", "", "Path to the ffprobe binary (empty = search PATH)")

	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("transcoding.workers", serveCmd.Flags().Lookup("workers"))
	mustBindPFlag("transcoding.queue_size", serveCmd.Flags().Lookup("queue-size"))
	mustBindPFlag("transcoding.ffmpeg_path", serveCmd.Flags().Lookup("ffmpeg"))
	mustBindPFlag("transcoding.ffprobe_path", serveCmd.Flags().Lookup("ffprobe"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	logger.Info("starting vidarr", slog.String("version", version.Short()))

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	for _, dir := range []string{
		cfg.Storage.UploadDir,
		cfg.Storage.TempDir,
		cfg.Storage.HLSDir,
		cfg.Storage.ThumbnailDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating storage directory %s: %w", dir, err)
		}
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	detector := ffmpeg.NewBinaryDetector(cfg.Transcoding.FFmpegPath, cfg.Transcoding.FFprobePath)
	binaries, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg binaries: %w", err)
	}
	logger.Info("ffmpeg toolchain detected",
		slog.String("ffmpeg", binaries.FFmpegPath),
		slog.String("ffprobe", binaries.FFprobePath),
		slog.String("version", binaries.Version),
	)
	cfg.Transcoding.FFmpegPath = binaries.FFmpegPath
	cfg.Transcoding.FFprobePath = binaries.FFprobePath

	videoRepo := repository.NewVideoRepository(db.DB)
	videoService := service.NewVideoService(videoRepo, cfg.Storage).WithLogger(logger)

	supervisor := ffmpeg.NewSupervisor(logger)
	prober := ffmpeg.NewProber(cfg.Transcoding.FFprobePath, supervisor).
		WithTimeout(cfg.Transcoding.ProbeTimeout).
		WithLogger(logger)

	pipeline := transcode.NewPipeline(videoService, supervisor, prober, cfg.Transcoding, cfg.Storage).
		WithLogger(logger)
	dispatcher := transcode.NewDispatcher(pipeline, cfg.Transcoding.Workers, cfg.Transcoding.QueueSize).
		WithLogger(logger)
	dispatcher.Start(ctx)

	uploadService := upload.NewService(videoService, dispatcher, cfg.Upload, cfg.Storage).
		WithLogger(logger)

	reaper := cron.New()
	if _, err := reaper.AddFunc(cfg.Upload.ReapSchedule, func() {
		uploadService.ReapStale(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling session reaper: %w", err)
	}
	reaper.Start()

	logger.Info("vidarr runtime started",
		slog.Int("workers", cfg.Transcoding.Workers),
		slog.Int("queue_size", cfg.Transcoding.QueueSize),
		slog.String("reap_schedule", cfg.Upload.ReapSchedule),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	reaperCtx := reaper.Stop()
	<-reaperCtx.Done()
	dispatcher.Stop()
	cancel()

	logger.Info("vidarr stopped")
	return nil
}
