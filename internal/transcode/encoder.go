package transcode

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// SegmentFilePattern is the numbered segment naming scheme players depend on.
const SegmentFilePattern = "seg_%03d.ts"

// MediaPlaylistName is the per-quality playlist filename.
const MediaPlaylistName = "playlist.m3u8"

// MasterPlaylistName is the master manifest filename.
const MasterPlaylistName = "master.m3u8"

// ThumbnailFileName is the default thumbnail filename.
const ThumbnailFileName = "default.jpg"

// encodeArgs builds the ffmpeg argument list for one quality tier. The
// output is an H.264/AAC HLS rendition: scaled and padded to the profile's
// dimensions, fixed-duration TS segments, and a VOD media playlist.
func encodeArgs(inputPath, outputDir string, profile QualityProfile, segmentSeconds int) []string {
	// Scale preserving aspect ratio, then pad to the exact profile frame so
	// all renditions share dimensions players expect.
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		profile.Width, profile.Height, profile.Width, profile.Height,
	)

	return []string{
		"-hide_banner",
		"-y",
		"-i", inputPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-profile:v", "high",
		"-level", "4.0",
		"-pix_fmt", "yuv420p",
		"-b:v", strconv.Itoa(profile.VideoBitrate),
		"-maxrate", strconv.Itoa(profile.VideoBitrate),
		"-bufsize", strconv.Itoa(profile.VideoBitrate * 2),
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", strconv.Itoa(profile.AudioBitrate),
		"-movflags", "+faststart",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outputDir, SegmentFilePattern),
		filepath.Join(outputDir, MediaPlaylistName),
	}
}

// thumbnailArgs builds the ffmpeg argument list for a single-frame
// thumbnail. seekSeconds selects the source frame; pass 0 for the first
// frame when the source is shorter than the default offset.
func thumbnailArgs(inputPath, outputPath string, seekSeconds int) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-ss", strconv.Itoa(seekSeconds),
		"-i", inputPath,
		"-vframes", "1",
		"-vf", "scale=640:-1",
		outputPath,
	}
}
