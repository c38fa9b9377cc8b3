// Package worker runs the request loop: each stdin line is parsed,
// conditioned, transcribed and answered with exactly one stdout line.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kototype-whisper/internal/asr"
	"kototype-whisper/internal/audio"
	"kototype-whisper/internal/dictionary"
	"kototype-whisper/internal/metrics"
	"kototype-whisper/internal/protocol"
	"kototype-whisper/internal/rabbitmq"
	"kototype-whisper/internal/textproc"
	"kototype-whisper/internal/vad"
	"kototype-whisper/internal/validator"
)

// Preprocessor conditions audio before recognition.
type Preprocessor interface {
	Process(ctx context.Context, inputPath string, overrides audio.GainOverrides) audio.PreprocessResult
}

// Transcriber runs the orchestrated recognition attempts.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts asr.Options) (asr.Result, error)
}

// Publisher receives an event for every answered request.
type Publisher interface {
	PublishTranscript(ctx context.Context, ev rabbitmq.TranscriptEvent) error
}

// HandlerConfig holds the process-wide request settings.
type HandlerConfig struct {
	VADStrict          bool
	UserDictionaryPath string
	Model              string
}

// Response is the outcome of one input line.
type Response struct {
	Text string
	// Skip is set for lines that are not requests; nothing is written.
	Skip bool

	outcome   string
	tempFiles []string
	event     rabbitmq.TranscriptEvent
	logger    *zap.SugaredLogger
}

// Handler processes single requests.
type Handler struct {
	cfg          HandlerConfig
	preprocessor Preprocessor
	transcriber  Transcriber
	metrics      *metrics.Metrics
	publisher    Publisher
	logger       *zap.SugaredLogger

	loadWords func(path string, logger *zap.SugaredLogger) []string
	newID     func() string
	now       func() time.Time
}

// NewHandler creates a handler. publisher may be nil.
func NewHandler(cfg HandlerConfig, pre Preprocessor, tr Transcriber, m *metrics.Metrics, publisher Publisher, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		cfg:          cfg,
		preprocessor: pre,
		transcriber:  tr,
		metrics:      m,
		publisher:    publisher,
		logger:       logger,
		loadWords:    dictionary.Load,
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// Handle turns one input line into a response. Failures of any kind,
// panics included, become an empty response.
func (h *Handler) Handle(ctx context.Context, line string) (resp Response) {
	id := h.newID()
	log := h.logger.With("request_id", id)
	started := h.now()

	resp.logger = log
	resp.event = rabbitmq.TranscriptEvent{RequestID: id, Model: h.cfg.Model}

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Request panicked", "panic", fmt.Sprint(r), "stage", "unknown")
			resp.Text = ""
			resp.Skip = false
			resp.outcome = metrics.OutcomePanic
			resp.event.Status = rabbitmq.StatusFailed
			resp.event.ErrorMessage = fmt.Sprint(r)
		}
		resp.event.Duration = h.now().Sub(started).Seconds()
		resp.event.FinishedAt = h.now().UTC()
		if !resp.Skip {
			h.metrics.ObserveStage(metrics.StageTotal, h.now().Sub(started))
		}
	}()

	req, err := protocol.ParseRequest(line)
	if errors.Is(err, protocol.ErrEmptyRequest) {
		log.Debugw("Empty audio path, skipping")
		return Response{Skip: true, logger: log}
	}
	if err != nil {
		return resp.fail(metrics.OutcomeMalformed, "parse", err)
	}
	resp.event.AudioPath = req.Path

	log.Infow("Received request",
		"path", req.Path,
		"language", req.Language,
		"temperature", req.Temperature,
		"beam_size", req.BeamSize,
		"no_speech_threshold", req.NoSpeechThreshold,
		"compression_ratio_threshold", req.CompressionRatioThreshold,
		"task", req.Task,
		"best_of", req.BestOf,
		"vad_threshold", req.VADThreshold,
		"auto_punctuation", req.AutoPunctuation,
	)

	size, err := validator.CheckAudioFile(req.Path)
	if err != nil {
		return resp.fail(metrics.OutcomeMissingFile, "validate", err)
	}
	log.Infow("File exists", "size_bytes", size)

	stageStart := h.now()
	pre := h.preprocessor.Process(ctx, req.Path, req.AutoGain)
	h.metrics.ObserveStage(metrics.StagePreprocess, h.now().Sub(stageStart))
	h.recordPreprocess(pre)
	if pre.Modified {
		resp.tempFiles = append(resp.tempFiles, pre.Path)
		log.Infow("Processed file size", "path", pre.Path, "size_bytes", validator.FileSize(pre.Path))
	}
	resp.event.PreprocessModified = pre.Modified
	resp.event.AppliedGainDB = pre.Gain.AppliedGainDB

	opts := asr.Options{
		Language:                  req.EngineLanguage(),
		Task:                      req.Task,
		Temperature:               req.Temperature,
		BeamSize:                  req.BeamSize,
		BestOf:                    req.BestOf,
		VADParameters:             vad.BuildParameters(req.VADThreshold, h.cfg.VADStrict),
		InitialPrompt:             dictionary.InitialPrompt(req.Language, h.loadWords(h.cfg.UserDictionaryPath, log)),
		NoSpeechThreshold:         req.NoSpeechThreshold,
		CompressionRatioThreshold: req.CompressionRatioThreshold,
	}
	log.Infow("Starting transcription",
		"audio", pre.Path,
		"vad_parameters", opts.VADParameters,
		"initial_prompt_chars", len([]rune(opts.InitialPrompt)),
	)

	stageStart = h.now()
	result, err := h.transcriber.Transcribe(ctx, pre.Path, opts)
	h.metrics.ObserveStage(metrics.StageTranscribe, h.now().Sub(stageStart))
	if result.FallbackUsed {
		h.metrics.VADFallbacks.Inc()
	}
	resp.event.FallbackUsed = result.FallbackUsed
	if err != nil {
		outcome := metrics.OutcomeEngineError
		if errors.Is(err, asr.ErrVADFallbackExhausted) {
			outcome = metrics.OutcomeFallback
		}
		return resp.fail(outcome, "transcribe", err)
	}

	text := textproc.PostProcess(result.Text, result.Language, req.AutoPunctuation)
	log.Infow("Transcription finished",
		"language", result.Language,
		"elapsed", h.now().Sub(stageStart).String(),
		"fallback_used", result.FallbackUsed,
		"raw", result.Text,
		"text", text,
	)

	resp.Text = text
	resp.event.Language = result.Language
	resp.event.Text = text
	resp.event.Status = rabbitmq.StatusOK
	resp.outcome = metrics.OutcomeOK
	if text == "" {
		resp.event.Status = rabbitmq.StatusEmpty
		resp.outcome = metrics.OutcomeEmpty
	}
	return resp
}

func (r Response) fail(outcome, stage string, err error) Response {
	r.logger.Errorw("Request failed", "path", r.event.AudioPath, "stage", stage, "error", err)
	r.Text = ""
	r.outcome = outcome
	r.event.Status = rabbitmq.StatusFailed
	r.event.ErrorMessage = err.Error()
	return r
}

func (h *Handler) recordPreprocess(pre audio.PreprocessResult) {
	switch {
	case !pre.Modified:
		h.metrics.PreprocessFailures.Inc()
	case pre.Candidate > 1:
		h.metrics.PreprocessFallbacks.Add(float64(pre.Candidate - 1))
	}
	if pre.Gain.AppliedGainDB > 0 {
		h.metrics.AutoGainApplied.Inc()
	}
}

// Finish runs the work that follows a written response: temp file
// removal, metrics export and event publishing.
func (h *Handler) Finish(ctx context.Context, resp Response) {
	if resp.Skip {
		return
	}
	log := resp.logger
	if log == nil {
		log = h.logger
	}

	for _, path := range resp.tempFiles {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnw("Failed to remove temporary file", "path", path, "error", err)
			continue
		}
		log.Debugw("Cleaned up temporary file", "path", path)
	}

	h.metrics.RecordOutcome(resp.outcome)
	if err := h.metrics.WriteTextfile(); err != nil {
		log.Warnw("Failed to export metrics", "error", err)
	}

	if h.publisher != nil {
		if err := h.publisher.PublishTranscript(ctx, resp.event); err != nil {
			log.Warnw("Failed to publish transcript event", "error", err)
		}
	}
}
