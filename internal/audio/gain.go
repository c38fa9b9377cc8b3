package audio

import (
	"fmt"
	"math"
)

// GainPolicy controls automatic gain for weak recordings.
type GainPolicy struct {
	Enabled           bool
	WeakThresholdDBFS float64
	TargetPeakDBFS    float64
	MaxGainDB         float64
}

// GainOverrides are per-request policy values; nil fields fall through to
// the process defaults.
type GainOverrides struct {
	Enabled           *bool
	WeakThresholdDBFS *float64
	TargetPeakDBFS    *float64
	MaxGainDB         *float64
}

// GainDecision records the measured peak and the gain that was applied.
// AppliedGainDB is zero when no boost was needed or it was not applied.
type GainDecision struct {
	PeakDBFS      float64
	AppliedGainDB float64
}

// ResolveGainPolicy layers request overrides over defaults and normalizes
// the result: max gain is never negative, and the target always sits above
// the weak threshold.
func ResolveGainPolicy(defaults GainPolicy, o GainOverrides) GainPolicy {
	p := defaults
	if o.Enabled != nil {
		p.Enabled = *o.Enabled
	}
	if o.WeakThresholdDBFS != nil {
		p.WeakThresholdDBFS = *o.WeakThresholdDBFS
	}
	if o.TargetPeakDBFS != nil {
		p.TargetPeakDBFS = *o.TargetPeakDBFS
	}
	if o.MaxGainDB != nil {
		p.MaxGainDB = *o.MaxGainDB
	}

	p.MaxGainDB = math.Max(0, p.MaxGainDB)
	if p.TargetPeakDBFS <= p.WeakThresholdDBFS {
		p.TargetPeakDBFS = math.Min(-1, p.WeakThresholdDBFS+1)
	}
	return p
}

// DetermineGain returns the boost in dB for a measured peak. Input at or
// above the weak threshold is left alone.
func DetermineGain(peakDBFS float64, p GainPolicy) float64 {
	if peakDBFS >= p.WeakThresholdDBFS {
		return 0
	}
	required := p.TargetPeakDBFS - peakDBFS
	if required <= 0 {
		return 0
	}
	return math.Min(required, math.Max(0, p.MaxGainDB))
}

// GainFilterChain boosts by gainDB and limits to avoid clipping.
func GainFilterChain(gainDB float64) string {
	return fmt.Sprintf("volume=%.2fdB,%s", gainDB, gainLimiterFilter)
}
