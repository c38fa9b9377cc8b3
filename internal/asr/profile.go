package asr

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProfileVersion is the only engine profile format understood.
const ProfileVersion = 1

// Profile tunes how engine errors are classified.
type Profile struct {
	Version            int      `yaml:"version"`
	VADAssetMarkers    []string `yaml:"vad_asset_markers"`
	MissingFileMarkers []string `yaml:"missing_file_markers"`
}

// DefaultProfile matches the messages faster-whisper produces when the
// bundled silero VAD model cannot be found.
func DefaultProfile() Profile {
	return Profile{
		Version:         ProfileVersion,
		VADAssetMarkers: []string{"silero_vad.onnx", "silero_vad_v6.onnx", "silero_vad"},
		MissingFileMarkers: []string{
			"no such file",
			"not found",
			"does not exist",
			"doesn't exist",
			"no_suchfile",
			"filenotfounderror",
		},
	}
}

// LoadProfile reads a YAML profile. An empty path returns DefaultProfile.
// Marker lists left empty in the file keep their defaults.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read engine profile %s: %w", path, err)
	}

	var parsed Profile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Profile{}, fmt.Errorf("failed to parse engine profile %s: %w", path, err)
	}
	if err := parsed.Validate(); err != nil {
		return Profile{}, fmt.Errorf("engine profile %s: %w", path, err)
	}

	if len(parsed.VADAssetMarkers) > 0 {
		profile.VADAssetMarkers = parsed.VADAssetMarkers
	}
	if len(parsed.MissingFileMarkers) > 0 {
		profile.MissingFileMarkers = parsed.MissingFileMarkers
	}
	return profile, nil
}

// Validate checks the profile version and rejects blank markers.
func (p Profile) Validate() error {
	if p.Version != ProfileVersion {
		return fmt.Errorf("unsupported version %d (want %d)", p.Version, ProfileVersion)
	}
	for _, m := range append(append([]string{}, p.VADAssetMarkers...), p.MissingFileMarkers...) {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("blank marker")
		}
	}
	return nil
}

// IsVADAssetMissing reports whether err says the VAD model file is missing.
// Both an asset marker and a missing-file marker must appear in the message.
func (p Profile) IsVADAssetMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return containsAny(msg, p.VADAssetMarkers) && containsAny(msg, p.MissingFileMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
