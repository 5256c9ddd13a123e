package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "vidarr.db", cfg.Database.DSN)

	assert.Equal(t, "./data/uploads", cfg.Storage.UploadDir)
	assert.Equal(t, "./data/temp", cfg.Storage.TempDir)
	assert.Equal(t, "./data/hls", cfg.Storage.HLSDir)
	assert.Equal(t, "./data/thumbnails", cfg.Storage.ThumbnailDir)

	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxChunkSize.Bytes())
	assert.Contains(t, cfg.Upload.AllowedExtensions, "mp4")
	assert.Equal(t, 24*time.Hour, cfg.Upload.SessionTTL)
	assert.Equal(t, time.Second, cfg.Upload.FreeSpaceCacheTTL)

	assert.Equal(t, 6, cfg.Transcoding.SegmentDuration)
	assert.Equal(t, []string{"480p", "720p", "1080p"}, cfg.Transcoding.Qualities)
	assert.Equal(t, 30*time.Second, cfg.Transcoding.ProbeTimeout)
	assert.Equal(t, 60*time.Minute, cfg.Transcoding.EncodeTimeout)
	assert.Equal(t, 2, cfg.Transcoding.Workers)
	assert.Equal(t, 8, cfg.Transcoding.QueueSize)
}

func TestValidate_Defaults(t *testing.T) {
	cfg := defaultConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: "database.dsn",
		},
		{
			name:    "missing upload dir",
			mutate:  func(c *Config) { c.Storage.UploadDir = "" },
			wantErr: "storage.upload_dir",
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.Upload.MaxFileSize = 0 },
			wantErr: "upload.max_file_size",
		},
		{
			name:    "empty extensions",
			mutate:  func(c *Config) { c.Upload.AllowedExtensions = nil },
			wantErr: "upload.allowed_extensions",
		},
		{
			name:    "bad reap schedule",
			mutate:  func(c *Config) { c.Upload.ReapSchedule = "not-a-cron" },
			wantErr: "upload.reap_schedule",
		},
		{
			name:    "empty qualities",
			mutate:  func(c *Config) { c.Transcoding.Qualities = nil },
			wantErr: "transcoding.qualities",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Transcoding.Workers = 0 },
			wantErr: "transcoding.workers",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Transcoding.QueueSize = 0 },
			wantErr: "transcoding.queue_size",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VIDARR_TRANSCODING_WORKERS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Transcoding.Workers)
}
