package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BinaryInfo contains information about the resolved FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// BinaryDetector resolves and caches the FFmpeg/FFprobe binaries.
// Configured paths take precedence; empty paths fall back to PATH lookup.
type BinaryDetector struct {
	ffmpegPath  string
	ffprobePath string
	cacheTTL    time.Duration

	mu           sync.Mutex
	info         *BinaryInfo
	lastDetected time.Time
}

// NewBinaryDetector creates a detector for the configured binary paths.
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		cacheTTL:    5 * time.Minute,
	}
}

// Detect resolves the binaries and reads the FFmpeg version. Results are
// cached for the detector's TTL.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	ffmpegPath, err := resolveBinary(d.ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobePath, err := resolveBinary(d.ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	info := &BinaryInfo{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
	}

	out, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("reading ffmpeg version: %w", err)
	}
	if m := versionRe.FindStringSubmatch(string(out)); m != nil {
		info.Version = m[1]
		info.MajorVersion, info.MinorVersion = parseVersion(m[1])
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

func resolveBinary(configured, name string) (string, error) {
	if configured != "" {
		if _, err := exec.LookPath(configured); err != nil {
			return "", fmt.Errorf("configured %s binary %q not found: %w", name, configured, err)
		}
		return configured, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// parseVersion extracts major and minor numbers from version strings like
// "6.1.1" or "n7.0-12-gabc". Unparseable parts are left at zero.
func parseVersion(version string) (major, minor int) {
	version = strings.TrimPrefix(version, "n")
	parts := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '-'
	})
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}
