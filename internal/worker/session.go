package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"kototype-whisper/internal/coordinator"
)

// Limits are the cross-process admission limits.
type Limits struct {
	MaxActiveServers      int
	MaxParallelModelLoads int
	ModelLoadWaitTimeout  time.Duration
}

// Session is this process's registration with the coordinator. Close
// releases everything the session holds exactly once.
type Session struct {
	coord  *coordinator.Coordinator
	pid    int
	logger *zap.SugaredLogger

	once sync.Once
}

// StartSession registers pid and waits for a model load slot. On any
// failure the registration is undone before returning.
func StartSession(ctx context.Context, coord *coordinator.Coordinator, pid int, limits Limits, logger *zap.SugaredLogger) (*Session, error) {
	admitted, active, err := coord.Register(pid, limits.MaxActiveServers)
	if err != nil {
		return nil, err
	}
	if !admitted {
		logger.Errorw("Too many active servers, exiting",
			"active", active,
			"max_active_servers", limits.MaxActiveServers,
		)
		return nil, fmt.Errorf("%w: %d active, limit %d", coordinator.ErrAdmissionRejected, active, limits.MaxActiveServers)
	}
	logger.Infow("Registered server", "pid", pid, "active", active)

	s := &Session{coord: coord, pid: pid, logger: logger}
	if err := coord.WaitForLoadSlot(ctx, pid, limits.MaxParallelModelLoads, limits.ModelLoadWaitTimeout); err != nil {
		logger.Errorw("Could not acquire model load slot", "error", err)
		s.Close()
		return nil, err
	}
	return s, nil
}

// LoadModel runs load while holding the load slot and releases the slot
// afterwards, whatever the outcome.
func (s *Session) LoadModel(ctx context.Context, load func(ctx context.Context) error) error {
	started := time.Now()
	err := load(ctx)
	if relErr := s.coord.ReleaseLoadSlot(s.pid); relErr != nil {
		s.logger.Warnw("Failed to release model load slot", "error", relErr)
	}
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	s.logger.Infow("Model loaded", "elapsed", time.Since(started).String())
	return nil
}

// Close releases the load slot and unregisters the process.
func (s *Session) Close() {
	s.once.Do(func() {
		if err := s.coord.ReleaseLoadSlot(s.pid); err != nil {
			s.logger.Warnw("Failed to release model load slot", "error", err)
		}
		if err := s.coord.Unregister(s.pid); err != nil {
			s.logger.Warnw("Failed to unregister server", "error", err)
			return
		}
		s.logger.Infow("Unregistered server", "pid", s.pid)
	})
}
