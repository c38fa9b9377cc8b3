package rabbitmq

import "time"

// Transcript event statuses.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// TranscriptEvent describes one finished request.
type TranscriptEvent struct {
	RequestID          string    `json:"request_id"`
	Status             string    `json:"status"`
	AudioPath          string    `json:"audio_path"`
	Language           string    `json:"language,omitempty"`
	Text               string    `json:"text"`
	FallbackUsed       bool      `json:"fallback_used"`
	PreprocessModified bool      `json:"preprocess_modified"`
	AppliedGainDB      float64   `json:"applied_gain_db"`
	Duration           float64   `json:"duration"`
	Model              string    `json:"model"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	FinishedAt         time.Time `json:"finished_at"`
}
