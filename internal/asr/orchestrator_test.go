package asr

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"kototype-whisper/internal/vad"
)

type fakeResponse struct {
	transcript Transcript
	err        error
}

// fakeTranscriber replays scripted responses and records the options of
// every call.
type fakeTranscriber struct {
	responses []fakeResponse
	calls     []Options
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, opts Options) (Transcript, error) {
	f.calls = append(f.calls, opts)
	if len(f.calls) > len(f.responses) {
		return Transcript{}, errors.New("unexpected call")
	}
	r := f.responses[len(f.calls)-1]
	return r.transcript, r.err
}

func segments(texts ...string) []Segment {
	out := make([]Segment, 0, len(texts))
	for _, t := range texts {
		out = append(out, Segment{Text: t})
	}
	return out
}

func baseOptions() Options {
	return Options{
		Language:      "ja",
		Task:          TaskTranscribe,
		BeamSize:      5,
		BestOf:        5,
		VADParameters: vad.BuildParameters(0.5, true),
	}
}

func TestOrchestratorPrimarySuccess(t *testing.T) {
	engine := &fakeTranscriber{responses: []fakeResponse{
		{transcript: Transcript{Segments: segments(" こんにちは", "世界 "), Language: "ja"}},
	}}
	o := NewOrchestrator(engine, DefaultProfile(), zap.NewNop().Sugar())

	res, err := o.Transcribe(context.Background(), "/a.wav", baseOptions())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "こんにちは 世界" || res.Language != "ja" {
		t.Errorf("result = %+v", res)
	}
	if res.FallbackUsed || len(engine.calls) != 1 || !engine.calls[0].VADFilter {
		t.Errorf("calls = %+v, fallback = %v", engine.calls, res.FallbackUsed)
	}
}

func TestOrchestratorFallbackOnEmptyResult(t *testing.T) {
	tests := []struct {
		name    string
		primary []Segment
	}{
		{name: "no segments", primary: nil},
		{name: "blank segments", primary: segments(" ", "\t")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeTranscriber{responses: []fakeResponse{
				{transcript: Transcript{Segments: tt.primary}},
				{transcript: Transcript{Segments: segments("hello"), Language: "en"}},
			}}
			core, logs := observer.New(zapcore.InfoLevel)
			o := NewOrchestrator(engine, DefaultProfile(), zap.New(core).Sugar())

			res, err := o.Transcribe(context.Background(), "/a.wav", baseOptions())
			if err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}
			if len(engine.calls) != 2 {
				t.Fatalf("calls = %d, want 2", len(engine.calls))
			}
			if !engine.calls[0].VADFilter || engine.calls[1].VADFilter {
				t.Errorf("vad flags = %v, %v", engine.calls[0].VADFilter, engine.calls[1].VADFilter)
			}
			if !res.FallbackUsed || res.Text != "hello" || len(res.Attempts) != 2 {
				t.Errorf("result = %+v", res)
			}
			if logs.FilterMessage("VAD result empty, retrying without VAD").Len() != 1 {
				t.Errorf("missing fallback log")
			}
		})
	}
}

func TestOrchestratorFallbackOnMissingVADAsset(t *testing.T) {
	engine := &fakeTranscriber{responses: []fakeResponse{
		{err: &EngineError{Message: "[ONNXRuntimeError] : 3 : NO_SUCHFILE : Load model from /x/silero_vad_v6.onnx failed"}},
		{transcript: Transcript{Segments: segments("テスト"), Language: "ja"}},
	}}
	o := NewOrchestrator(engine, DefaultProfile(), zap.NewNop().Sugar())

	res, err := o.Transcribe(context.Background(), "/a.wav", baseOptions())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if !res.FallbackUsed || res.Text != "テスト" {
		t.Errorf("result = %+v", res)
	}
}

func TestOrchestratorOtherErrorPropagatesWithoutRetry(t *testing.T) {
	cause := &EngineError{Message: "CUDA out of memory"}
	engine := &fakeTranscriber{responses: []fakeResponse{{err: cause}}}
	o := NewOrchestrator(engine, DefaultProfile(), zap.NewNop().Sugar())

	_, err := o.Transcribe(context.Background(), "/a.wav", baseOptions())
	if !errors.Is(err, ErrEngineFailure) {
		t.Fatalf("error = %v, want ErrEngineFailure", err)
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Errorf("error chain lost *EngineError: %v", err)
	}
	if len(engine.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(engine.calls))
	}
}

func TestOrchestratorFallbackError(t *testing.T) {
	engine := &fakeTranscriber{responses: []fakeResponse{
		{transcript: Transcript{}},
		{err: errors.New("decoder crashed")},
	}}
	o := NewOrchestrator(engine, DefaultProfile(), zap.NewNop().Sugar())

	res, err := o.Transcribe(context.Background(), "/a.wav", baseOptions())
	if !errors.Is(err, ErrVADFallbackExhausted) {
		t.Fatalf("error = %v, want ErrVADFallbackExhausted", err)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(res.Attempts))
	}
}

func TestOrchestratorFallbackEmptyIsFinal(t *testing.T) {
	engine := &fakeTranscriber{responses: []fakeResponse{
		{transcript: Transcript{}},
		{transcript: Transcript{Segments: segments("  ")}},
	}}
	o := NewOrchestrator(engine, DefaultProfile(), zap.NewNop().Sugar())

	res, err := o.Transcribe(context.Background(), "/a.wav", baseOptions())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "" || len(engine.calls) != 2 {
		t.Errorf("result = %+v, calls = %d", res, len(engine.calls))
	}
}

func TestOrchestratorLanguageResolution(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		detected  string
		want      string
	}{
		{name: "auto uses detected", requested: "", detected: "en", want: "en"},
		{name: "pinned wins", requested: "ja", detected: "en", want: "ja"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeTranscriber{responses: []fakeResponse{
				{transcript: Transcript{Segments: segments("x"), Language: tt.detected}},
			}}
			opts := baseOptions()
			opts.Language = tt.requested

			res, err := NewOrchestrator(engine, DefaultProfile(), zap.NewNop().Sugar()).
				Transcribe(context.Background(), "/a.wav", opts)
			if err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}
			if res.Language != tt.want {
				t.Errorf("language = %q, want %q", res.Language, tt.want)
			}
		})
	}
}

func TestParseTask(t *testing.T) {
	for raw, want := range map[string]Task{"": TaskTranscribe, "transcribe": TaskTranscribe, "translate": TaskTranslate} {
		got, err := ParseTask(raw)
		if err != nil || got != want {
			t.Errorf("ParseTask(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseTask("summarize"); err == nil {
		t.Error("ParseTask(summarize) should fail")
	}
}
