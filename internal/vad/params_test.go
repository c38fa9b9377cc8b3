package vad

import (
	"math"
	"testing"
)

func TestBuildParametersStrictModeDefault(t *testing.T) {
	params := BuildParameters(0.5, true)

	if math.Abs(params.Threshold-0.57) > 1e-9 {
		t.Errorf("threshold = %v, want 0.57", params.Threshold)
	}
	if params.MinSpeechDurationMs != 320 || params.MinSilenceDurationMs != 700 || params.SpeechPadMs != 80 {
		t.Errorf("windows = %+v, want 320/700/80", params)
	}
}

func TestBuildParametersNonStrictMode(t *testing.T) {
	params := BuildParameters(0.5, false)

	want := Parameters{Threshold: 0.5, MinSpeechDurationMs: 250, MinSilenceDurationMs: 500, SpeechPadMs: 30}
	if params != want {
		t.Errorf("params = %+v, want %+v", params, want)
	}
}

func TestBuildParametersClampsThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		strict    bool
		want      float64
	}{
		{name: "strict near one", threshold: 0.98, strict: true, want: 1},
		{name: "strict above one", threshold: 1.5, strict: true, want: 1},
		{name: "relaxed negative", threshold: -0.2, strict: false, want: 0},
		{name: "strict negative", threshold: -0.5, strict: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildParameters(tt.threshold, tt.strict).Threshold; got != tt.want {
				t.Errorf("threshold = %v, want %v", got, tt.want)
			}
		})
	}
}
