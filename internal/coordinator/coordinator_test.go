package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestCoordinator treats every PID in dead as exited and all others as
// running.
func newTestCoordinator(t *testing.T, dead ...int) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "server_state.json")
	c := New(statePath, filepath.Join(dir, "server_state.lock"), zap.NewNop().Sugar())
	c.store.alive = func(pid int) bool { return !slices.Contains(dead, pid) }
	c.pollInterval = 10 * time.Millisecond
	return c, statePath
}

func TestRegisterAdmitsUpToLimit(t *testing.T) {
	c, _ := newTestCoordinator(t)

	admitted, active, err := c.Register(100, 2)
	if err != nil || !admitted || active != 1 {
		t.Fatalf("Register(100) = %v, %d, %v", admitted, active, err)
	}
	admitted, active, err = c.Register(101, 2)
	if err != nil || !admitted || active != 2 {
		t.Fatalf("Register(101) = %v, %d, %v", admitted, active, err)
	}
	admitted, active, err = c.Register(102, 2)
	if err != nil || admitted || active != 2 {
		t.Fatalf("Register(102) = %v, %d, %v, want rejected", admitted, active, err)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)

	for i := 0; i < 2; i++ {
		admitted, active, err := c.Register(100, 1)
		if err != nil || !admitted || active != 1 {
			t.Fatalf("Register() #%d = %v, %d, %v", i, admitted, active, err)
		}
	}
}

func TestRegisterPrunesDeadProcesses(t *testing.T) {
	c, statePath := newTestCoordinator(t, 999)
	stale := `{"active_pids":[999],"loading_pids":[999],"updated_at":"2024-01-01T00:00:00Z"}`
	if err := os.WriteFile(statePath, []byte(stale), 0o644); err != nil {
		t.Fatal(err)
	}

	admitted, active, err := c.Register(100, 1)
	if err != nil || !admitted || active != 1 {
		t.Fatalf("Register() = %v, %d, %v", admitted, active, err)
	}

	state, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(state.ActivePIDs, []int{100}) || len(state.LoadingPIDs) != 0 {
		t.Errorf("state = %+v", state)
	}
}

func TestCorruptStateFileIsTreatedAsEmpty(t *testing.T) {
	c, statePath := newTestCoordinator(t)
	if err := os.WriteFile(statePath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	admitted, active, err := c.Register(100, 1)
	if err != nil || !admitted || active != 1 {
		t.Fatalf("Register() = %v, %d, %v", admitted, active, err)
	}
}

func TestStateFileFormat(t *testing.T) {
	c, statePath := newTestCoordinator(t)
	if _, _, err := c.Register(100, 1); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state is not JSON: %v", err)
	}
	if string(raw["active_pids"]) != "[100]" || string(raw["loading_pids"]) != "[]" {
		t.Errorf("state = %s", data)
	}
	var updated time.Time
	if err := json.Unmarshal(raw["updated_at"], &updated); err != nil || updated.IsZero() {
		t.Errorf("updated_at = %s, err = %v", raw["updated_at"], err)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(statePath), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestLoadSlotAcquireAndRelease(t *testing.T) {
	c, _ := newTestCoordinator(t)

	acquired, loading, err := c.TryAcquireLoadSlot(100, 1)
	if err != nil || !acquired || loading != 1 {
		t.Fatalf("TryAcquireLoadSlot(100) = %v, %d, %v", acquired, loading, err)
	}
	acquired, loading, err = c.TryAcquireLoadSlot(101, 1)
	if err != nil || acquired || loading != 1 {
		t.Fatalf("TryAcquireLoadSlot(101) = %v, %d, %v, want busy", acquired, loading, err)
	}

	if err := c.ReleaseLoadSlot(100); err != nil {
		t.Fatal(err)
	}
	acquired, _, err = c.TryAcquireLoadSlot(101, 1)
	if err != nil || !acquired {
		t.Fatalf("TryAcquireLoadSlot(101) after release = %v, %v", acquired, err)
	}
}

func TestUnregisterRemovesFromBothSets(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, _, err := c.Register(100, 1); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.TryAcquireLoadSlot(100, 1); err != nil {
		t.Fatal(err)
	}

	if err := c.Unregister(100); err != nil {
		t.Fatal(err)
	}
	state, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(state.ActivePIDs) != 0 || len(state.LoadingPIDs) != 0 {
		t.Errorf("state = %+v", state)
	}
}

func TestWaitForLoadSlotTimesOut(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, _, err := c.TryAcquireLoadSlot(200, 1); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err := c.WaitForLoadSlot(context.Background(), 100, 1, 60*time.Millisecond)
	if !errors.Is(err, ErrAdmissionTimeout) {
		t.Fatalf("error = %v, want ErrAdmissionTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestWaitForLoadSlotAcquiresAfterRelease(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, _, err := c.TryAcquireLoadSlot(200, 1); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = c.ReleaseLoadSlot(200)
	}()

	if err := c.WaitForLoadSlot(context.Background(), 100, 1, 5*time.Second); err != nil {
		t.Fatalf("WaitForLoadSlot() error = %v", err)
	}
	state, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(state.LoadingPIDs, []int{100}) {
		t.Errorf("loading = %v, want [100]", state.LoadingPIDs)
	}
}

func TestWaitForLoadSlotHonorsContext(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, _, err := c.TryAcquireLoadSlot(200, 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.WaitForLoadSlot(ctx, 100, 1, 5*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestConcurrentRegistrationsAreSerialized(t *testing.T) {
	c, _ := newTestCoordinator(t)

	var wg sync.WaitGroup
	for pid := 1000; pid < 1020; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			if _, _, err := c.Register(pid, 10); err != nil {
				t.Errorf("Register(%d) error = %v", pid, err)
			}
		}(pid)
	}
	wg.Wait()

	state, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(state.ActivePIDs) != 10 {
		t.Errorf("active = %v, want exactly 10 admitted", state.ActivePIDs)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if processAlive(0) || processAlive(-1) {
		t.Error("non-positive pids are never alive")
	}
}
