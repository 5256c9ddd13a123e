package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/vidarr/internal/config"
	"github.com/jmylchreest/vidarr/internal/ffmpeg"
	"github.com/jmylchreest/vidarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory VideoStore tracking status transitions.
type fakeStore struct {
	mu     sync.Mutex
	videos map[models.ULID]*models.Video
}

func newFakeStore() *fakeStore {
	return &fakeStore{videos: make(map[models.ULID]*models.Video)}
}

func (s *fakeStore) add(v *models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
}

func (s *fakeStore) Get(_ context.Context, id models.ULID) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, models.ErrVideoNotFound
	}
	copied := *v
	return &copied, nil
}

func (s *fakeStore) Update(_ context.Context, video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[video.ID]; !ok {
		return models.ErrVideoNotFound
	}
	copied := *video
	// Status changes go through UpdateStatus only.
	copied.Status = s.videos[video.ID].Status
	s.videos[video.ID] = &copied
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id models.ULID, status models.VideoStatus, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return models.ErrVideoNotFound
	}
	if !v.Status.CanTransitionTo(status) {
		return models.ErrInvalidTransition
	}
	v.Status = status
	v.ProcessingError = processingError
	return nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id models.ULID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.videos[id]; ok {
		v.ProcessingProgress = progress
	}
	return nil
}

func (s *fakeStore) get(id models.ULID) *models.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videos[id]
}

// fakeRunner simulates supervised subprocess runs. failKeys selects tasks
// that fail by key substring.
type fakeRunner struct {
	mu       sync.Mutex
	tasks    []ffmpeg.Task
	failKeys []string
	delay    time.Duration
}

func (r *fakeRunner) Run(_ context.Context, task ffmpeg.Task) (*ffmpeg.Result, error) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	for _, key := range r.failKeys {
		if strings.Contains(task.Key, key) {
			return &ffmpeg.Result{ExitCode: 1}, &ffmpeg.ProcessError{
				Kind: ffmpeg.ErrorKindExit, TaskKey: task.Key, Binary: task.Binary, ExitCode: 1,
			}
		}
	}
	return &ffmpeg.Result{ExitCode: 0}, nil
}

func (r *fakeRunner) taskKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.tasks))
	for i, task := range r.tasks {
		keys[i] = task.Key
	}
	return keys
}

// fakeProber returns a fixed probe result.
type fakeProber struct {
	info *ffmpeg.MediaInfo
	err  error
}

func (p *fakeProber) Probe(context.Context, string, string) (*ffmpeg.MediaInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.info, nil
}

type pipelineFixture struct {
	store     *fakeStore
	runner    *fakeRunner
	prober    *fakeProber
	pipeline  *Pipeline
	video     *models.Video
	inputPath string
	hlsDir    string
}

func newPipelineFixture(t *testing.T, qualities []string, sourceHeight int) *pipelineFixture {
	t.Helper()
	root := t.TempDir()

	inputPath := filepath.Join(root, "original.mp4")
	require.NoError(t, os.WriteFile(inputPath, []byte("fake video bytes"), 0o644))

	store := newFakeStore()
	video := &models.Video{
		Title:  "clip",
		Status: models.VideoStatusUploading,
	}
	video.ID = models.NewULID()
	store.add(video)

	runner := &fakeRunner{}
	prober := &fakeProber{info: &ffmpeg.MediaInfo{Width: sourceHeight * 16 / 9, Height: sourceHeight, DurationSeconds: 60}}

	cfg := config.TranscodingConfig{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		SegmentDuration:  6,
		Qualities:        qualities,
		ProbeTimeout:     time.Second,
		ThumbnailTimeout: time.Second,
		EncodeTimeout:    time.Minute,
	}
	storage := config.StorageConfig{
		UploadDir:    filepath.Join(root, "uploads"),
		TempDir:      filepath.Join(root, "tmp"),
		HLSDir:       filepath.Join(root, "hls"),
		ThumbnailDir: filepath.Join(root, "thumbs"),
	}

	return &pipelineFixture{
		store:     store,
		runner:    runner,
		prober:    prober,
		pipeline:  NewPipeline(store, runner, prober, cfg, storage),
		video:     video,
		inputPath: inputPath,
		hlsDir:    filepath.Join(storage.HLSDir, video.ID.String()),
	}
}

func TestPipelineAllQualitiesSucceed(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p", "1080p"}, 1080)

	err := f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath)
	require.NoError(t, err)

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Equal(t, models.StringList{"480p", "720p", "1080p"}, v.AvailableQualities)
	assert.Empty(t, v.ProcessingError)
	assert.Equal(t, 100, v.ProcessingProgress)
	assert.Equal(t, 1080, v.Height)
	assert.Equal(t, "/hls/"+v.ID.String()+"/master.m3u8", v.MasterPlaylistURL)

	// Original source reclaimed after success.
	_, statErr := os.Stat(f.inputPath)
	assert.True(t, os.IsNotExist(statErr))

	data, err := os.ReadFile(filepath.Join(f.hlsDir, MasterPlaylistName))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "#EXT-X-STREAM-INF"))
}

func TestPipelineNeverUpscales(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p", "1080p"}, 480)

	err := f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath)
	require.NoError(t, err)

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Equal(t, models.StringList{"480p"}, v.AvailableQualities)

	keys := f.runner.taskKeys()
	for _, key := range keys {
		assert.NotContains(t, key, "720p")
		assert.NotContains(t, key, "1080p")
	}
}

func TestPipelineAllQualitiesFail(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p", "1080p"}, 1080)
	f.runner.failKeys = []string{"480p", "720p", "1080p"}

	err := f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath)
	require.Error(t, err)

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusFailed, v.Status)
	assert.NotEmpty(t, v.ProcessingError)
	assert.Empty(t, v.AvailableQualities)

	// No master manifest may exist after total failure.
	_, statErr := os.Stat(filepath.Join(f.hlsDir, MasterPlaylistName))
	assert.True(t, os.IsNotExist(statErr))

	// Partial quality directories are cleaned up.
	for _, label := range []string{"480p", "720p", "1080p"} {
		_, statErr := os.Stat(filepath.Join(f.hlsDir, label))
		assert.True(t, os.IsNotExist(statErr), label)
	}

	// Input removed best-effort on failure.
	_, statErr = os.Stat(f.inputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineSingleQualitySurvives(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p", "1080p"}, 1080)
	f.runner.failKeys = []string{"480p", "1080p"}

	err := f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath)
	require.NoError(t, err)

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Equal(t, models.StringList{"720p"}, v.AvailableQualities)

	data, err := os.ReadFile(filepath.Join(f.hlsDir, MasterPlaylistName))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "#EXT-X-STREAM-INF"))
	assert.Contains(t, string(data), "720p/playlist.m3u8")
}

func TestPipelineThumbnailFailureIsNonFatal(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p"}, 480)
	f.runner.failKeys = []string{"thumbnail"}

	err := f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath)
	require.NoError(t, err)

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Empty(t, v.ThumbnailURL)
}

func TestPipelineProbeFailureFallsBack(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p", "1080p"}, 1080)
	f.prober.err = fmt.Errorf("probe exploded")

	err := f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath)
	require.NoError(t, err)

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	// Fallback dimensions admit the full configured ladder.
	assert.Equal(t, 1920, v.Width)
	assert.Equal(t, 1080, v.Height)
	assert.Equal(t, 0, v.DurationSeconds)
	assert.Equal(t, models.StringList{"480p", "720p", "1080p"}, v.AvailableQualities)
}

func TestPipelineMissingRecordAbortsBeforeSubprocess(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p"}, 480)

	err := f.pipeline.Transcode(context.Background(), models.NewULID(), f.inputPath)
	require.Error(t, err)
	assert.Empty(t, f.runner.taskKeys(), "no subprocess may be spawned for a missing record")
}

func TestPipelineTaskKeysCarryVideoAndQuality(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p"}, 720)

	require.NoError(t, f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath))

	keys := f.runner.taskKeys()
	id := f.video.ID.String()
	assert.Contains(t, keys, id+"_thumbnail")
	assert.Contains(t, keys, id+"_480p")
	assert.Contains(t, keys, id+"_720p")
}

func TestPipelineRetranscodeDropsLostQualities(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p", "720p"}, 720)

	require.NoError(t, f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath))
	require.Equal(t, models.StringList{"480p", "720p"}, f.store.get(f.video.ID).AvailableQualities)

	// On the second run 720p fails; its directory is cleared, so the
	// record must stop advertising it.
	f.runner.failKeys = []string{"720p"}
	require.NoError(t, os.WriteFile(f.inputPath, []byte("fresh bytes"), 0o644))
	require.NoError(t, f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath))

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Equal(t, models.StringList{"480p"}, v.AvailableQualities)

	data, err := os.ReadFile(filepath.Join(f.hlsDir, MasterPlaylistName))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "#EXT-X-STREAM-INF"))
}

func TestPipelineRetranscodeIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, []string{"480p"}, 480)

	require.NoError(t, f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath))

	// Leave stale content in the quality directory, then run again with a
	// fresh source file.
	staleSeg := filepath.Join(f.hlsDir, "480p", "seg_042.ts")
	require.NoError(t, os.MkdirAll(filepath.Dir(staleSeg), 0o755))
	require.NoError(t, os.WriteFile(staleSeg, []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(f.inputPath, []byte("fresh bytes"), 0o644))

	require.NoError(t, f.pipeline.Transcode(context.Background(), f.video.ID, f.inputPath))

	_, err := os.Stat(staleSeg)
	assert.True(t, os.IsNotExist(err), "prior quality output must be cleared")

	v := f.store.get(f.video.ID)
	assert.Equal(t, models.VideoStatusReady, v.Status)
	assert.Equal(t, models.StringList{"480p"}, v.AvailableQualities)
}
