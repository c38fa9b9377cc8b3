package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often WaitForLoadSlot retries.
const DefaultPollInterval = 250 * time.Millisecond

var (
	// ErrAdmissionRejected means the active worker limit is reached.
	ErrAdmissionRejected = errors.New("too many active servers")
	// ErrAdmissionTimeout means no model load slot freed up in time.
	ErrAdmissionTimeout = errors.New("timed out waiting for model load slot")
)

// Coordinator applies admission and load-slot rules on top of a Store.
type Coordinator struct {
	store        *Store
	logger       *zap.SugaredLogger
	pollInterval time.Duration
}

// New creates a coordinator using the given state and lock files.
func New(statePath, lockPath string, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		store:        NewStore(statePath, lockPath),
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
}

// Register adds pid to the active set unless maxActive other workers are
// already active. It reports the active count after the call.
func (c *Coordinator) Register(pid, maxActive int) (bool, int, error) {
	admitted := false
	state, err := c.store.Update(func(s *State) error {
		if slices.Contains(s.ActivePIDs, pid) {
			admitted = true
			return nil
		}
		if len(s.ActivePIDs) >= maxActive {
			return nil
		}
		s.ActivePIDs = append(s.ActivePIDs, pid)
		admitted = true
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("register pid %d: %w", pid, err)
	}
	return admitted, len(state.ActivePIDs), nil
}

// TryAcquireLoadSlot adds pid to the loading set when fewer than
// maxParallel workers are loading. It reports the loading count.
func (c *Coordinator) TryAcquireLoadSlot(pid, maxParallel int) (bool, int, error) {
	acquired := false
	state, err := c.store.Update(func(s *State) error {
		if slices.Contains(s.LoadingPIDs, pid) {
			acquired = true
			return nil
		}
		if len(s.LoadingPIDs) >= maxParallel {
			return nil
		}
		s.LoadingPIDs = append(s.LoadingPIDs, pid)
		acquired = true
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("acquire load slot for pid %d: %w", pid, err)
	}
	return acquired, len(state.LoadingPIDs), nil
}

// ReleaseLoadSlot removes pid from the loading set.
func (c *Coordinator) ReleaseLoadSlot(pid int) error {
	_, err := c.store.Update(func(s *State) error {
		s.LoadingPIDs = without(s.LoadingPIDs, pid)
		return nil
	})
	if err != nil {
		return fmt.Errorf("release load slot for pid %d: %w", pid, err)
	}
	return nil
}

// Unregister removes pid from both sets.
func (c *Coordinator) Unregister(pid int) error {
	_, err := c.store.Update(func(s *State) error {
		s.ActivePIDs = without(s.ActivePIDs, pid)
		s.LoadingPIDs = without(s.LoadingPIDs, pid)
		return nil
	})
	if err != nil {
		return fmt.Errorf("unregister pid %d: %w", pid, err)
	}
	return nil
}

// WaitForLoadSlot polls TryAcquireLoadSlot until it succeeds, timeout
// elapses (ErrAdmissionTimeout) or ctx is done.
func (c *Coordinator) WaitForLoadSlot(ctx context.Context, pid, maxParallel int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	logged := false

	for {
		acquired, loading, err := c.TryAcquireLoadSlot(pid, maxParallel)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if !logged {
			c.logger.Infow("Waiting for model load slot",
				"pid", pid,
				"loading", loading,
				"max_parallel_loads", maxParallel,
				"timeout", timeout.String(),
			)
			logged = true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w after %s", ErrAdmissionTimeout, timeout)
		}

		timer := time.NewTimer(min(c.pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Snapshot returns the current pruned state.
func (c *Coordinator) Snapshot() (State, error) {
	return c.store.Snapshot()
}

func without(pids []int, pid int) []int {
	return slices.DeleteFunc(pids, func(p int) bool { return p == pid })
}
