package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kototype.prom")
	m := NewMetrics(path)

	m.RecordOutcome(OutcomeOK)
	m.RecordOutcome(OutcomeOK)
	m.RecordOutcome(OutcomeMissingFile)
	m.VADFallbacks.Inc()
	m.ObserveStage(StageTranscribe, 1500*time.Millisecond)

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`kototype_requests_total{outcome="ok"} 2`,
		`kototype_requests_total{outcome="missing_file"} 1`,
		`kototype_vad_fallbacks_total 1`,
		`kototype_stage_duration_seconds_count{stage="transcribe"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestWriteTextfileDisabled(t *testing.T) {
	m := NewMetrics("")
	m.RecordOutcome(OutcomeOK)
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("WriteTextfile() error = %v", err)
	}
}

func TestMetricsUsePrivateRegistry(t *testing.T) {
	a, b := NewMetrics(""), NewMetrics("")
	a.RecordOutcome(OutcomeOK)

	families, err := b.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "kototype_requests_total" && len(f.GetMetric()) != 0 {
			t.Errorf("second registry saw samples from the first")
		}
	}
}
