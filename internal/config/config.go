// Package config provides configuration management for vidarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxFileSize  = 8 * 1024 * 1024 * 1024 // 8GB
	defaultMinDiskFree  = 1024 * 1024 * 1024     // 1GB
	defaultMaxChunkSize = 10 * 1024 * 1024       // 10MB

	defaultSessionTTL        = 24 * time.Hour
	defaultFreeSpaceCacheTTL = time.Second

	defaultSegmentDuration  = 6
	defaultProbeTimeout     = 30 * time.Second
	defaultThumbnailTimeout = 30 * time.Second
	defaultEncodeTimeout    = 60 * time.Minute
	defaultWorkers          = 2
	defaultQueueSize        = 8
)

// Config holds all configuration for the application.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Transcoding TranscodingConfig `mapstructure:"transcoding"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds on-disk layout configuration.
// Finalized originals live under {upload_dir}/{videoId}/, segmented output
// under {hls_dir}/{videoId}/{quality}/, thumbnails under {thumbnail_dir}/{videoId}/.
type StorageConfig struct {
	UploadDir    string `mapstructure:"upload_dir"`
	TempDir      string `mapstructure:"temp_dir"`
	HLSDir       string `mapstructure:"hls_dir"`
	ThumbnailDir string `mapstructure:"thumbnail_dir"`
}

// UploadConfig holds chunked upload intake configuration.
type UploadConfig struct {
	// MaxFileSize is the maximum declared size accepted at init.
	// Supports human-readable values like "8GB" or raw byte counts.
	MaxFileSize ByteSize `mapstructure:"max_file_size"`

	// MinDiskFree is the reserve that must remain free on the upload volume
	// after accepting a new upload.
	MinDiskFree ByteSize `mapstructure:"min_disk_free"`

	// MaxChunkSize caps a single chunk body.
	MaxChunkSize ByteSize `mapstructure:"max_chunk_size"`

	// AllowedExtensions is the case-insensitive extension allow-list.
	AllowedExtensions []string `mapstructure:"allowed_extensions"`

	// SessionTTL is how long an idle upload session survives before the
	// reaper cancels it.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// ReapSchedule is a standard 5-field cron expression for the stale
	// session reaper.
	ReapSchedule string `mapstructure:"reap_schedule"`

	// FreeSpaceCacheTTL bounds how stale the cached free-space value may be.
	FreeSpaceCacheTTL time.Duration `mapstructure:"free_space_cache_ttl"`
}

// TranscodingConfig holds transcoding pipeline configuration.
type TranscodingConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`  // Path to ffmpeg binary (empty = search PATH)
	FFprobePath string `mapstructure:"ffprobe_path"` // Path to ffprobe binary (empty = search PATH)

	// SegmentDuration is the HLS segment length in seconds.
	SegmentDuration int `mapstructure:"segment_duration"`

	// Qualities is the quality allow-list, e.g. ["480p", "720p", "1080p"].
	Qualities []string `mapstructure:"qualities"`

	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ThumbnailTimeout time.Duration `mapstructure:"thumbnail_timeout"`
	EncodeTimeout    time.Duration `mapstructure:"encode_timeout"`

	// Workers is the number of concurrent transcoding workers.
	Workers int `mapstructure:"workers"`

	// QueueSize bounds the transcode admission queue. When the queue is
	// full, new transcode requests are rejected outright.
	QueueSize int `mapstructure:"queue_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VIDARR_ and use underscores for nesting.
// Example: VIDARR_TRANSCODING_WORKERS=4.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vidarr")
		v.AddConfigPath("$HOME/.vidarr")
	}

	v.SetEnvPrefix("VIDARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config from an already-initialized
// viper instance. Used by the CLI, whose root command owns the global viper
// (defaults, config file, env, bound flags).
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vidarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.upload_dir", "./data/uploads")
	v.SetDefault("storage.temp_dir", "./data/temp")
	v.SetDefault("storage.hls_dir", "./data/hls")
	v.SetDefault("storage.thumbnail_dir", "./data/thumbnails")

	// Upload defaults
	v.SetDefault("upload.max_file_size", defaultMaxFileSize)
	v.SetDefault("upload.min_disk_free", defaultMinDiskFree)
	v.SetDefault("upload.max_chunk_size", defaultMaxChunkSize)
	v.SetDefault("upload.allowed_extensions", []string{"mp4", "mkv", "avi", "mov", "webm"})
	v.SetDefault("upload.session_ttl", defaultSessionTTL)
	v.SetDefault("upload.reap_schedule", "*/10 * * * *")
	v.SetDefault("upload.free_space_cache_ttl", defaultFreeSpaceCacheTTL)

	// Transcoding defaults
	v.SetDefault("transcoding.ffmpeg_path", "")
	v.SetDefault("transcoding.ffprobe_path", "")
	v.SetDefault("transcoding.segment_duration", defaultSegmentDuration)
	v.SetDefault("transcoding.qualities", []string{"480p", "720p", "1080p"})
	v.SetDefault("transcoding.probe_timeout", defaultProbeTimeout)
	v.SetDefault("transcoding.thumbnail_timeout", defaultThumbnailTimeout)
	v.SetDefault("transcoding.encode_timeout", defaultEncodeTimeout)
	v.SetDefault("transcoding.workers", defaultWorkers)
	v.SetDefault("transcoding.queue_size", defaultQueueSize)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage.upload_dir is required")
	}
	if c.Storage.TempDir == "" {
		return fmt.Errorf("storage.temp_dir is required")
	}
	if c.Storage.HLSDir == "" {
		return fmt.Errorf("storage.hls_dir is required")
	}
	if c.Storage.ThumbnailDir == "" {
		return fmt.Errorf("storage.thumbnail_dir is required")
	}

	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload.max_file_size must be positive")
	}
	if c.Upload.MaxChunkSize <= 0 {
		return fmt.Errorf("upload.max_chunk_size must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("upload.allowed_extensions must not be empty")
	}
	if c.Upload.ReapSchedule != "" {
		if _, err := cron.ParseStandard(c.Upload.ReapSchedule); err != nil {
			return fmt.Errorf("upload.reap_schedule is not a valid cron expression: %w", err)
		}
	}

	if c.Transcoding.SegmentDuration < 1 {
		return fmt.Errorf("transcoding.segment_duration must be at least 1")
	}
	if len(c.Transcoding.Qualities) == 0 {
		return fmt.Errorf("transcoding.qualities must not be empty")
	}
	if c.Transcoding.Workers < 1 {
		return fmt.Errorf("transcoding.workers must be at least 1")
	}
	if c.Transcoding.QueueSize < 1 {
		return fmt.Errorf("transcoding.queue_size must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
