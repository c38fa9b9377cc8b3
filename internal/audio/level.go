// Package audio conditions recorded speech before recognition: it composes
// ffmpeg filter chains, runs them with cascading fallback and corrects weak
// input levels with automatic gain.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for WAV data other than 16-bit PCM.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const (
	fullScale16   = 32767.0
	analysisBlock = 4096
)

// AnalyzePeakDBFS returns the peak level of a 16-bit PCM WAV file in dBFS.
// A file containing only digital silence yields negative infinity.
func AnalyzePeakDBFS(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("%w: %s is not a PCM WAV file", ErrUnsupportedFormat, path)
	}
	if dec.BitDepth != 16 {
		return 0, fmt.Errorf("%w: %d-bit samples in %s", ErrUnsupportedFormat, dec.BitDepth, path)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}

	buf := &goaudio.IntBuffer{
		Format: dec.Format(),
		Data:   make([]int, analysisBlock*channels),
	}

	maxPeak := 0
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return 0, fmt.Errorf("read pcm from %s: %w", path, err)
		}
		if n == 0 {
			break
		}
		// First channel of each frame only; input is expected to be mono.
		for i := 0; i < n; i += channels {
			sample := buf.Data[i]
			if sample < 0 {
				sample = -sample
			}
			if sample > maxPeak {
				maxPeak = sample
			}
		}
	}

	return PeakToDBFS(maxPeak), nil
}

// PeakToDBFS converts an absolute 16-bit sample magnitude to dBFS.
func PeakToDBFS(peak int) float64 {
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(peak)/fullScale16)
}
