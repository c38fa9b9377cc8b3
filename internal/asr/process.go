package asr

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const readySignal = "READY"

// ErrEngineStopped is returned by calls on an engine whose process is gone.
var ErrEngineStopped = errors.New("engine process is not running")

// EngineCommand describes how to launch the engine process.
type EngineCommand struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
}

type engineRequest struct {
	AudioPath string `json:"audio_path"`
	Options
}

type engineResponse struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Error    string    `json:"error,omitempty"`
}

// ProcessEngine is a persistent recognition process. The process loads the
// model on start and prints READY; afterwards each request is one JSON line
// on stdin answered by one JSON line on stdout.
type ProcessEngine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *zap.SugaredLogger

	mu    sync.Mutex
	alive bool
	done  chan struct{}
}

// StartProcessEngine launches the engine and blocks until it reports READY,
// the process exits or ctx is done.
func StartProcessEngine(ctx context.Context, command EngineCommand, logger *zap.SugaredLogger) (*ProcessEngine, error) {
	cmd := exec.Command(command.Path, command.Args...)
	cmd.Env = append(os.Environ(), command.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine process: %w", err)
	}

	e := &ProcessEngine{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		logger: logger,
		alive:  true,
		done:   make(chan struct{}),
	}
	go e.logStderr(stderr)

	started := time.Now()
	if err := e.waitReady(ctx); err != nil {
		e.kill()
		return nil, err
	}

	logger.Infow("Engine process ready", "pid", cmd.Process.Pid, "load_time", time.Since(started).String())
	return e, nil
}

func (e *ProcessEngine) waitReady(ctx context.Context) error {
	type readResult struct {
		line string
		err  error
	}
	ready := make(chan readResult, 1)
	go func() {
		line, err := e.stdout.ReadString('\n')
		ready <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for engine ready signal: %w", ctx.Err())
	case r := <-ready:
		if r.err != nil {
			return fmt.Errorf("failed to read ready signal: %w", r.err)
		}
		if strings.TrimSpace(r.line) != readySignal {
			return fmt.Errorf("unexpected ready signal: %q", strings.TrimSpace(r.line))
		}
		return nil
	}
}

func (e *ProcessEngine) logStderr(stderr io.Reader) {
	defer close(e.done)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		e.logger.Debugw("engine", "line", scanner.Text())
	}
}

// Transcribe sends one request and waits for its response line.
func (e *ProcessEngine) Transcribe(_ context.Context, audioPath string, opts Options) (Transcript, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.alive {
		return Transcript{}, ErrEngineStopped
	}

	payload, err := json.Marshal(engineRequest{AudioPath: audioPath, Options: opts})
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to marshal engine request: %w", err)
	}

	if _, err := fmt.Fprintf(e.stdin, "%s\n", payload); err != nil {
		e.alive = false
		return Transcript{}, fmt.Errorf("failed to write to engine: %w", err)
	}

	line, err := e.stdout.ReadString('\n')
	if err != nil {
		e.alive = false
		return Transcript{}, fmt.Errorf("failed to read from engine: %w", err)
	}

	var resp engineResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return Transcript{}, fmt.Errorf("failed to parse engine response: %w, raw: %s", err, strings.TrimSpace(line))
	}
	if resp.Error != "" {
		return Transcript{}, &EngineError{Message: resp.Error}
	}

	return Transcript{Segments: resp.Segments, Language: resp.Language}, nil
}

// Close stops the engine process. It is safe to call more than once.
func (e *ProcessEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return nil
	}
	e.alive = false
	_ = e.stdin.Close()

	select {
	case <-e.done:
	case <-time.After(5 * time.Second):
		e.logger.Warnw("Engine did not exit after stdin closed, killing it", "pid", e.cmd.Process.Pid)
		_ = e.cmd.Process.Kill()
	}
	err := e.cmd.Wait()
	e.cmd = nil
	return err
}

func (e *ProcessEngine) kill() {
	_ = e.stdin.Close()
	_ = e.cmd.Process.Kill()
	_ = e.cmd.Wait()
}
