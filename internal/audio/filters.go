package audio

import "strings"

// Filter descriptors understood by ffmpeg's -af option.
const (
	FilterHighpass      = "highpass=f=100"
	FilterLowpass       = "lowpass=f=7800"
	FilterNLMDenoise    = "anlmdn=s=0.08:p=0.003"
	FilterFFTDenoise    = "afftdn=nf=-26:tn=1"
	FilterDynamicNorm   = "dynaudnorm=f=90:g=15:p=0.8"
	FilterCompressor    = "acompressor=threshold=-21dB:ratio=2.8:attack=5:release=90"
	gainLimiterFilter   = "alimiter=limit=0.98"
	maxFilterCandidates = 3
)

// FilterChainCandidate is one ranked preprocessing attempt. Rank 1 is tried first.
type FilterChainCandidate struct {
	Rank    int
	Filters []string
}

// String renders the chain for ffmpeg.
func (c FilterChainCandidate) String() string {
	return strings.Join(c.Filters, ",")
}

// Contains reports whether the chain uses a filter with the given name.
func (c FilterChainCandidate) Contains(name string) bool {
	for _, f := range c.Filters {
		if f == name || strings.HasPrefix(f, name+"=") {
			return true
		}
	}
	return false
}

// BuildFilterChain returns the band-limit, normalize and compress chain,
// with spectral denoise (and optionally non-local-means denoise) inserted
// ahead of normalization.
func BuildFilterChain(noiseReduction, nlmDenoise bool) []string {
	filters := []string{FilterHighpass, FilterLowpass}
	if noiseReduction {
		if nlmDenoise {
			filters = append(filters, FilterNLMDenoise)
		}
		filters = append(filters, FilterFFTDenoise)
	}
	return append(filters, FilterDynamicNorm, FilterCompressor)
}

// BuildFilterChainCandidates lists chains from strongest to weakest denoise.
// The strong denoiser is missing from some ffmpeg builds, so weaker chains
// follow it and the last candidate has no denoise stage at all.
func BuildFilterChainCandidates(noiseReduction bool) []FilterChainCandidate {
	if !noiseReduction {
		return []FilterChainCandidate{{Rank: 1, Filters: BuildFilterChain(false, false)}}
	}

	candidates := make([]FilterChainCandidate, 0, maxFilterCandidates)
	candidates = append(candidates,
		FilterChainCandidate{Rank: 1, Filters: BuildFilterChain(true, true)},
		FilterChainCandidate{Rank: 2, Filters: BuildFilterChain(true, false)},
		FilterChainCandidate{Rank: 3, Filters: BuildFilterChain(false, false)},
	)
	return candidates
}
