package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// FilterEngine applies an ffmpeg-style filter chain to an audio file,
// writing 16 kHz mono 16-bit PCM to outputPath.
type FilterEngine interface {
	Apply(ctx context.Context, inputPath, outputPath, filterChain string) error
}

// FilterError is a filter engine failure with the command's diagnostics.
type FilterError struct {
	Chain    string
	ExitCode int
	Stderr   string
	Err      error
}

// Error keeps the last stderr line, which is where ffmpeg reports the cause.
func (e *FilterError) Error() string {
	if e == nil {
		return ""
	}
	msg := lastLine(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("ffmpeg failed (exit=%d): %s", e.ExitCode, msg)
}

// Unwrap exposes the underlying process error.
func (e *FilterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// FFmpegEngine runs filter chains with the ffmpeg CLI.
type FFmpegEngine struct {
	path   string
	runner commandRunner
}

// NewFFmpegEngine creates an engine invoking the binary at path.
func NewFFmpegEngine(path string) *FFmpegEngine {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return &FFmpegEngine{path: path, runner: &execRunner{}}
}

// Apply runs one filter chain, overwriting outputPath.
func (e *FFmpegEngine) Apply(ctx context.Context, inputPath, outputPath, filterChain string) error {
	args := buildFFmpegArgs(inputPath, outputPath, filterChain)
	res, err := e.runner.Run(ctx, e.path, args...)
	if err != nil {
		return &FilterError{
			Chain:    filterChain,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(res.Stderr),
			Err:      err,
		}
	}
	return nil
}

// buildFFmpegArgs builds args for filtered mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outputPath, filterChain string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-af", filterChain,
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		outputPath,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
