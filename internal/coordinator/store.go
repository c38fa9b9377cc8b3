// Package coordinator shares admission and model-load state between worker
// processes on the same machine through a JSON file guarded by an advisory
// lock.
package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

var errReadOnly = errors.New("read-only transaction")

// State is the persisted set of live workers.
type State struct {
	ActivePIDs  []int     `json:"active_pids"`
	LoadingPIDs []int     `json:"loading_pids"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store serializes read-modify-write cycles on the state file.
type Store struct {
	statePath string
	lockPath  string
	alive     func(pid int) bool
	now       func() time.Time
}

// NewStore creates a store for the given state and lock files.
func NewStore(statePath, lockPath string) *Store {
	return &Store{
		statePath: statePath,
		lockPath:  lockPath,
		alive:     processAlive,
		now:       time.Now,
	}
}

// Update runs mutate inside one exclusive lock. The state handed to mutate
// has dead PIDs pruned; it is written back only when mutate succeeds.
func (s *Store) Update(mutate func(*State) error) (State, error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return State{}, fmt.Errorf("create state dir: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return State{}, fmt.Errorf("open lock file: %w", err)
	}
	defer lock.Close()

	if err := flock(lock, unix.LOCK_EX); err != nil {
		return State{}, fmt.Errorf("lock state: %w", err)
	}
	defer flock(lock, unix.LOCK_UN)

	state := s.load()
	state.ActivePIDs = s.prune(state.ActivePIDs)
	state.LoadingPIDs = s.prune(state.LoadingPIDs)

	if err := mutate(&state); err != nil {
		return state, err
	}

	state.UpdatedAt = s.now().UTC()
	if err := s.save(state); err != nil {
		return state, err
	}
	return state, nil
}

// Snapshot returns the pruned state without modifying the file.
func (s *Store) Snapshot() (State, error) {
	state, err := s.Update(func(*State) error { return errReadOnly })
	if errors.Is(err, errReadOnly) {
		return state, nil
	}
	return state, err
}

// load treats a missing or unreadable file as empty state.
func (s *Store) load() State {
	var state State
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}
	}
	return state
}

func (s *Store) save(state State) error {
	if state.ActivePIDs == nil {
		state.ActivePIDs = []int{}
	}
	if state.LoadingPIDs == nil {
		state.LoadingPIDs = []int{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.statePath), filepath.Base(s.statePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpPath, s.statePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// prune drops dead and duplicate PIDs and returns them sorted.
func (s *Store) prune(pids []int) []int {
	seen := make(map[int]struct{}, len(pids))
	out := make([]int, 0, len(pids))
	for _, pid := range pids {
		if _, dup := seen[pid]; dup || !s.alive(pid) {
			continue
		}
		seen[pid] = struct{}{}
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
