// Package protocol implements the line protocol spoken with the host
// application: one pipe-delimited request per stdin line and one response
// line per request on stdout.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"kototype-whisper/internal/asr"
	"kototype-whisper/internal/audio"
	"kototype-whisper/internal/config"
)

var (
	// ErrMalformedRequest is returned for requests that cannot be parsed.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrEmptyRequest is returned for lines without an audio path. Such
	// lines are skipped without a response.
	ErrEmptyRequest = errors.New("empty request")
)

// AutoLanguage asks the engine to detect the spoken language.
const AutoLanguage = "auto"

// Defaults for fields that are missing or empty.
const (
	DefaultLanguage                  = "ja"
	DefaultTemperature               = 0.0
	DefaultBeamSize                  = 5
	DefaultNoSpeechThreshold         = 0.6
	DefaultCompressionRatioThreshold = 2.4
	DefaultBestOf                    = 5
	DefaultVADThreshold              = 0.5
)

const (
	fieldPath = iota
	fieldLanguage
	fieldTemperature
	fieldBeamSize
	fieldNoSpeechThreshold
	fieldCompressionRatioThreshold
	fieldTask
	fieldBestOf
	fieldVADThreshold
	fieldAutoPunctuation
	fieldAutoGainEnabled
	fieldAutoGainWeakThreshold
	fieldAutoGainTargetPeak
	fieldAutoGainMaxDB
)

// Request is one parsed transcription request.
type Request struct {
	Path                      string
	Language                  string
	Temperature               float64
	BeamSize                  int
	NoSpeechThreshold         float64
	CompressionRatioThreshold float64
	Task                      asr.Task
	BestOf                    int
	VADThreshold              float64
	AutoPunctuation           bool
	AutoGain                  audio.GainOverrides
}

// EngineLanguage returns the language to pin, or "" for detection.
func (r Request) EngineLanguage() string {
	if r.Language == AutoLanguage {
		return ""
	}
	return r.Language
}

// ParseRequest parses one request line. Missing and empty optional fields
// take their defaults; values that are present but invalid fail the whole
// request with ErrMalformedRequest.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "|")
	p := fieldParser{fields: fields}

	req := Request{
		Path:                      strings.TrimSpace(fields[fieldPath]),
		Language:                  p.str(fieldLanguage, DefaultLanguage),
		Temperature:               p.float(fieldTemperature, DefaultTemperature),
		BeamSize:                  p.positiveInt(fieldBeamSize, DefaultBeamSize),
		NoSpeechThreshold:         p.float(fieldNoSpeechThreshold, DefaultNoSpeechThreshold),
		CompressionRatioThreshold: p.float(fieldCompressionRatioThreshold, DefaultCompressionRatioThreshold),
		BestOf:                    p.positiveInt(fieldBestOf, DefaultBestOf),
		VADThreshold:              p.float(fieldVADThreshold, DefaultVADThreshold),
		AutoPunctuation:           true,
		AutoGain: audio.GainOverrides{
			WeakThresholdDBFS: p.optionalFloat(fieldAutoGainWeakThreshold),
			TargetPeakDBFS:    p.optionalFloat(fieldAutoGainTargetPeak),
			MaxGainDB:         p.optionalFloat(fieldAutoGainMaxDB),
		},
	}

	if v, ok := config.ParseBool(p.raw(fieldAutoPunctuation)); ok {
		req.AutoPunctuation = v
	}
	if v, ok := config.ParseBool(p.raw(fieldAutoGainEnabled)); ok {
		req.AutoGain.Enabled = &v
	}

	task, err := asr.ParseTask(p.raw(fieldTask))
	if err != nil {
		p.fail(err)
	}
	req.Task = task

	if p.err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, p.err)
	}
	if req.Path == "" {
		return Request{}, ErrEmptyRequest
	}
	return req, nil
}

// fieldParser reads optional fields and keeps the first parse error.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) raw(i int) string {
	if i >= len(p.fields) {
		return ""
	}
	return strings.TrimSpace(p.fields[i])
}

func (p *fieldParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *fieldParser) str(i int, def string) string {
	if v := p.raw(i); v != "" {
		return v
	}
	return def
}

func (p *fieldParser) float(i int, def float64) float64 {
	if v := p.optionalFloat(i); v != nil {
		return *v
	}
	return def
}

func (p *fieldParser) optionalFloat(i int) *float64 {
	raw := p.raw(i)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(fmt.Errorf("field %d: invalid number %q", i, raw))
		return nil
	}
	return &v
}

func (p *fieldParser) positiveInt(i int, def int) int {
	raw := p.raw(i)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		p.fail(fmt.Errorf("field %d: invalid positive integer %q", i, raw))
		return def
	}
	return v
}
