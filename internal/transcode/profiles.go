// Package transcode converts uploaded source files into multi-quality HLS
// assets. The Pipeline drives thumbnailing, probing, per-quality encoding,
// and master manifest assembly; the Dispatcher bounds how many pipelines run
// at once.
package transcode

import (
	"fmt"
	"strconv"
)

// QualityProfile is one target tier of the encoding ladder.
type QualityProfile struct {
	// Label names the tier and its output directory, e.g. "720p".
	Label string
	// Width and Height are the padded output dimensions.
	Width  int
	Height int
	// VideoBitrate is the target video bitrate in bits per second.
	VideoBitrate int
	// AudioBitrate is the audio bitrate in bits per second.
	AudioBitrate int
}

// Bandwidth returns the total stream bandwidth advertised in the master
// manifest.
func (p QualityProfile) Bandwidth() int {
	return p.VideoBitrate + p.AudioBitrate
}

// Resolution returns the "WxH" string for manifest stream-info entries.
func (p QualityProfile) Resolution() string {
	return strconv.Itoa(p.Width) + "x" + strconv.Itoa(p.Height)
}

// ladder is the full encoding ladder in increasing quality order. 480p is
// the baseline tier and is attempted whenever allowed; higher tiers are
// gated on the probed source height so we never upscale.
var ladder = []QualityProfile{
	{Label: "480p", Width: 854, Height: 480, VideoBitrate: 1_500_000, AudioBitrate: 128_000},
	{Label: "720p", Width: 1280, Height: 720, VideoBitrate: 3_000_000, AudioBitrate: 128_000},
	{Label: "1080p", Width: 1920, Height: 1080, VideoBitrate: 6_000_000, AudioBitrate: 128_000},
	{Label: "2160p", Width: 3840, Height: 2160, VideoBitrate: 25_000_000, AudioBitrate: 128_000},
}

// baselineHeight marks the tier that skips the source-height gate.
const baselineHeight = 480

// ProfileByLabel returns the ladder entry with the given label.
func ProfileByLabel(label string) (QualityProfile, error) {
	for _, p := range ladder {
		if p.Label == label {
			return p, nil
		}
	}
	return QualityProfile{}, fmt.Errorf("unknown quality profile: %q", label)
}

// ProfilesFor selects the profiles to attempt for a source of the given
// probed height, in increasing quality order. A profile is included when its
// label is in the allow-list and, above the baseline tier, the source height
// reaches the profile's target height.
func ProfilesFor(allowed []string, sourceHeight int) []QualityProfile {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, label := range allowed {
		allowSet[label] = struct{}{}
	}

	var profiles []QualityProfile
	for _, p := range ladder {
		if _, ok := allowSet[p.Label]; !ok {
			continue
		}
		if p.Height > baselineHeight && sourceHeight < p.Height {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles
}
