package asr

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Attempt records one engine call.
type Attempt struct {
	VADEnabled bool
	Segments   []Segment
	Language   string
	Err        error
}

// Result is the orchestrated outcome for one request.
type Result struct {
	Text         string
	Language     string
	FallbackUsed bool
	Attempts     []Attempt
}

// Orchestrator runs the primary VAD-filtered call and, when it yields
// nothing usable, a single retry with VAD disabled.
type Orchestrator struct {
	engine  Transcriber
	profile Profile
	logger  *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator over engine.
func NewOrchestrator(engine Transcriber, profile Profile, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{engine: engine, profile: profile, logger: logger}
}

// Transcribe runs the attempts for audioPath. opts.VADFilter is ignored;
// the primary attempt always filters and the retry never does.
func (o *Orchestrator) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	var res Result

	primary := o.attempt(ctx, audioPath, opts, true)
	res.Attempts = append(res.Attempts, primary)

	final := primary
	switch {
	case primary.Err != nil && o.profile.IsVADAssetMissing(primary.Err):
		o.logger.Warnw("VAD model asset missing, retrying without VAD", "error", primary.Err)
	case primary.Err != nil:
		return res, fmt.Errorf("%w: %w", ErrEngineFailure, primary.Err)
	case !hasText(primary.Segments):
		o.logger.Infow("VAD result empty, retrying without VAD",
			"segments", len(primary.Segments),
			"vad_threshold", opts.VADParameters.Threshold,
		)
	default:
		return o.finish(res, final, opts), nil
	}

	fallback := o.attempt(ctx, audioPath, opts, false)
	res.Attempts = append(res.Attempts, fallback)
	res.FallbackUsed = true
	if fallback.Err != nil {
		return res, fmt.Errorf("%w: %w", ErrVADFallbackExhausted, fallback.Err)
	}

	o.logger.Infow("Fallback transcription finished", "segments", len(fallback.Segments))
	return o.finish(res, fallback, opts), nil
}

func (o *Orchestrator) attempt(ctx context.Context, audioPath string, opts Options, vadEnabled bool) Attempt {
	opts.VADFilter = vadEnabled
	transcript, err := o.engine.Transcribe(ctx, audioPath, opts)
	return Attempt{
		VADEnabled: vadEnabled,
		Segments:   transcript.Segments,
		Language:   transcript.Language,
		Err:        err,
	}
}

func (o *Orchestrator) finish(res Result, final Attempt, opts Options) Result {
	res.Text = JoinSegments(final.Segments)
	res.Language = opts.Language
	if res.Language == "" {
		res.Language = final.Language
	}
	return res
}

// JoinSegments joins segment texts with single spaces and trims the result.
func JoinSegments(segments []Segment) string {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		texts = append(texts, s.Text)
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

func hasText(segments []Segment) bool {
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}
