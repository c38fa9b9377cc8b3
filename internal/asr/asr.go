// Package asr drives the external speech recognition engine: it defines the
// Transcriber boundary, runs the engine as a persistent subprocess and
// orchestrates the VAD-on / VAD-off attempts for one request.
package asr

import (
	"context"
	"errors"
	"fmt"

	"kototype-whisper/internal/vad"
)

var (
	// ErrEngineFailure marks a primary transcription error that is not
	// eligible for the VAD-off retry.
	ErrEngineFailure = errors.New("transcription engine failure")
	// ErrVADFallbackExhausted marks a failure of the VAD-off retry.
	ErrVADFallbackExhausted = errors.New("vad fallback exhausted")
)

// Task selects between transcription and translation to English.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// ParseTask validates a task name. Empty input maps to TaskTranscribe.
func ParseTask(raw string) (Task, error) {
	switch Task(raw) {
	case "", TaskTranscribe:
		return TaskTranscribe, nil
	case TaskTranslate:
		return TaskTranslate, nil
	}
	return "", fmt.Errorf("unknown task %q", raw)
}

// Options are the recognition parameters forwarded to the engine.
// An empty Language asks the engine to detect it.
type Options struct {
	Language                  string         `json:"language,omitempty"`
	Task                      Task           `json:"task"`
	Temperature               float64        `json:"temperature"`
	BeamSize                  int            `json:"beam_size"`
	BestOf                    int            `json:"best_of"`
	VADFilter                 bool           `json:"vad_filter"`
	VADParameters             vad.Parameters `json:"vad_parameters"`
	WordTimestamps            bool           `json:"word_timestamps"`
	InitialPrompt             string         `json:"initial_prompt,omitempty"`
	NoSpeechThreshold         float64        `json:"no_speech_threshold"`
	CompressionRatioThreshold float64        `json:"compression_ratio_threshold"`
}

// Segment is one recognized span of text.
type Segment struct {
	Text string `json:"text"`
}

// Transcript is the engine output for one call.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcriber recognizes speech in an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (Transcript, error)
}

// EngineError is an error reported by the engine itself, as opposed to a
// failure talking to it.
type EngineError struct {
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "engine: " + e.Message
	}
	return fmt.Sprintf("engine: %s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
