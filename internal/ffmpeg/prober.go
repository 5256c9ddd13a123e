package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Fallback dimensions when the probe fails to return usable values. The
// pipeline proceeds with a conservative assumption rather than aborting.
const (
	fallbackWidth  = 1920
	fallbackHeight = 1080
)

// MediaInfo holds the probed properties of the primary video stream.
type MediaInfo struct {
	Width           int
	Height          int
	DurationSeconds int
}

// Prober extracts stream metadata using ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	supervisor  *Supervisor
	logger      *slog.Logger
}

// NewProber creates a new prober using the given ffprobe binary.
func NewProber(ffprobePath string, supervisor *Supervisor) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
		supervisor:  supervisor,
		logger:      slog.Default(),
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// WithLogger sets the logger.
func (p *Prober) WithLogger(logger *slog.Logger) *Prober {
	p.logger = logger
	return p
}

// Probe inspects the primary video stream of the file at path. A probe that
// runs but produces unparseable output yields fallback dimensions and zero
// duration instead of an error; only a failed or timed-out subprocess is an
// error.
func (p *Prober) Probe(ctx context.Context, taskKey, path string) (*MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-of", "csv=p=0",
		path,
	}

	result, err := p.supervisor.Run(ctx, Task{
		Key:     taskKey,
		Binary:  p.ffprobePath,
		Args:    args,
		Timeout: p.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	info := parseProbeOutput(result.Stdout)
	if info.Width == fallbackWidth && info.Height == fallbackHeight && info.DurationSeconds == 0 {
		p.logger.Warn("probe output unusable, using fallback dimensions",
			slog.String("path", path),
			slog.String("output", strings.TrimSpace(result.Stdout)),
		)
	}
	return info, nil
}

// parseProbeOutput parses "width,height,duration" CSV from ffprobe. Any
// missing or malformed field falls back individually.
func parseProbeOutput(out string) *MediaInfo {
	info := &MediaInfo{Width: fallbackWidth, Height: fallbackHeight}

	line := strings.TrimSpace(out)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return info
	}

	fields := strings.Split(line, ",")
	if len(fields) >= 2 {
		w, werr := strconv.Atoi(strings.TrimSpace(fields[0]))
		h, herr := strconv.Atoi(strings.TrimSpace(fields[1]))
		if werr == nil && herr == nil && w > 0 && h > 0 {
			info.Width = w
			info.Height = h
		}
	}
	if len(fields) >= 3 {
		if d, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err == nil && d > 0 {
			info.DurationSeconds = int(d)
		}
	}
	return info
}
