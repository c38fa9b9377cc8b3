// Package vad derives voice-activity-detection settings passed to the ASR
// engine's VAD pre-filter.
package vad

import "math"

// strictThresholdDelta raises the speech probability threshold in strict mode.
const strictThresholdDelta = 0.07

// Parameters are the VAD thresholds and timing windows for one request.
type Parameters struct {
	Threshold            float64 `json:"threshold"`
	MinSpeechDurationMs  int     `json:"min_speech_duration_ms"`
	MinSilenceDurationMs int     `json:"min_silence_duration_ms"`
	SpeechPadMs          int     `json:"speech_pad_ms"`
}

// BuildParameters derives VAD settings from the requested sensitivity.
// Strict mode raises the threshold and lengthens the windows so short noise
// bursts are not detected as speech.
func BuildParameters(threshold float64, strict bool) Parameters {
	if strict {
		return Parameters{
			Threshold:            clamp01(threshold + strictThresholdDelta),
			MinSpeechDurationMs:  320,
			MinSilenceDurationMs: 700,
			SpeechPadMs:          80,
		}
	}
	return Parameters{
		Threshold:            clamp01(threshold),
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 500,
		SpeechPadMs:          30,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
