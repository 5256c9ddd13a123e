package transcode

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// h264HighAAC is the codec string for the fixed encoder output
// (H.264 High profile + AAC-LC).
var h264HighAAC = []string{"avc1.640028", "mp4a.40.2"}

// BuildMasterManifest assembles the multivariant master playlist referencing
// one media playlist per successfully encoded profile. Profiles must be in
// the order their stream-info entries should appear.
func BuildMasterManifest(profiles []QualityProfile) ([]byte, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no quality profiles to reference")
	}

	mv := &playlist.Multivariant{
		Version:             3,
		IndependentSegments: true,
	}
	for _, p := range profiles {
		mv.Variants = append(mv.Variants, &playlist.MultivariantVariant{
			Bandwidth:  p.Bandwidth(),
			Resolution: p.Resolution(),
			Codecs:     h264HighAAC,
			URI:        p.Label + "/" + MediaPlaylistName,
		})
	}

	data, err := mv.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling master manifest: %w", err)
	}
	return data, nil
}

// WriteMasterManifest writes the master playlist into the video's HLS
// directory and returns its path.
func WriteMasterManifest(hlsDir string, profiles []QualityProfile) (string, error) {
	data, err := BuildMasterManifest(profiles)
	if err != nil {
		return "", err
	}

	path := filepath.Join(hlsDir, MasterPlaylistName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing master manifest: %w", err)
	}
	return path, nil
}
