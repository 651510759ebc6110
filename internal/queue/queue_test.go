package queue

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/hub"
	"github.com/erikbeerepoot/bramble/internal/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// MockSender answers from a queue of canned results
type MockSender struct {
	mu      sync.Mutex
	results []result
	sent    []string
}

type result struct {
	resp hub.Response
	err  error
}

func (m *MockSender) push(resp hub.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result{resp, err})
}

func (m *MockSender) Send(_ context.Context, command string, _ time.Duration) (hub.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, command)
	if len(m.results) == 0 {
		return nil, errors.NewTimeoutError(command, time.Second)
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.resp, r.err
}

func openTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "queue.db"), clock.Now)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestWorker(t *testing.T, maxRetries int) (*Worker, *MockSender, *Store, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1760000000, 0)}
	store := openTestStore(t, clock)
	sender := &MockSender{}
	w := NewWorker(store, sender, config.QueueSettings{
		MaxRetries:   maxRetries,
		RetryDelay:   30 * time.Second,
		PollInterval: time.Second,
	}, WorkerOptions{Clock: clock.Now, Logger: logger.NewMockLogger()})
	return w, sender, store, clock
}

func TestStoreEnqueueGetList(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1760000000, 0)}
	s := openTestStore(t, clock)

	first, err := s.Enqueue("REBOOT_NODE 3")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, _ := s.Enqueue("REBOOT_NODE 4")
	if first.ID == second.ID || len(first.ID) != 36 {
		t.Errorf("Expected distinct UUIDs, got %q and %q", first.ID, second.ID)
	}

	got, err := s.Get(first.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Command != "REBOOT_NODE 3" || got.State != StatePending {
		t.Errorf("Unexpected task %+v", got)
	}

	all, _ := s.List("")
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Errorf("Expected tasks in submission order, got %+v", all)
	}

	if _, err := s.Get("missing"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWorkerSucceedsOnQueued(t *testing.T) {
	w, sender, store, _ := newTestWorker(t, 3)
	sender.push(hub.Response{"QUEUED SET_WAKE_INTERVAL 3 2"}, nil)

	task, _ := w.Submit("SET_WAKE_INTERVAL 3 300")
	if n := w.ProcessDue(context.Background()); n != 1 {
		t.Fatalf("Expected 1 attempt, got %d", n)
	}

	got, _ := store.Get(task.ID)
	if got.State != StateSucceeded {
		t.Fatalf("Expected succeeded, got %s (%s)", got.State, got.LastError)
	}
	if got.Position == nil || *got.Position != 2 {
		t.Errorf("Expected queue position 2, got %v", got.Position)
	}
	if got.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", got.Attempts)
	}
}

func TestWorkerStoresUnexpectedResponseAsWarning(t *testing.T) {
	w, sender, store, _ := newTestWorker(t, 3)
	sender.push(hub.Response{"ERROR node 3 unknown"}, nil)

	task, _ := w.Submit("REBOOT_NODE 3")
	w.ProcessDue(context.Background())

	got, _ := store.Get(task.ID)
	if got.State != StateWarning {
		t.Fatalf("Expected warning, got %s", got.State)
	}
	if len(got.Result) != 1 || got.Result[0] != "ERROR node 3 unknown" {
		t.Errorf("Expected the hub's answer to be stored, got %v", got.Result)
	}
}

func TestWorkerRetriesOnFixedDelay(t *testing.T) {
	w, sender, store, clock := newTestWorker(t, 2)
	task, _ := w.Submit("REBOOT_NODE 3")

	// Three attempts in total: the first plus two retries
	for attempt := 1; attempt <= 3; attempt++ {
		if n := w.ProcessDue(context.Background()); n != 1 {
			t.Fatalf("Attempt %d: expected the task to be due", attempt)
		}
		got, _ := store.Get(task.ID)
		if attempt < 3 {
			if got.State != StatePending {
				t.Fatalf("Attempt %d: expected pending, got %s", attempt, got.State)
			}
			if !got.NextAttemptAt.Equal(clock.Now().Add(30 * time.Second)) {
				t.Errorf("Attempt %d: next attempt at %s", attempt, got.NextAttemptAt)
			}
			if w.ProcessDue(context.Background()) != 0 {
				t.Fatal("Task must wait for the retry delay")
			}
			clock.Advance(30 * time.Second)
		} else if got.State != StateFailed || got.LastError == "" {
			t.Errorf("Expected failed with the last error, got %s %q", got.State, got.LastError)
		}
	}
	if len(sender.sent) != 3 {
		t.Errorf("Expected 3 sends, got %d", len(sender.sent))
	}
}

func TestWorkerFailsNonRecoverableImmediately(t *testing.T) {
	w, sender, store, _ := newTestWorker(t, 3)
	sender.push(nil, errors.NewValidationError("interval_seconds", "10-3600", 5))

	task, _ := w.Submit("SET_WAKE_INTERVAL 3 5")
	w.ProcessDue(context.Background())

	got, _ := store.Get(task.ID)
	if got.State != StateFailed || got.Attempts != 1 {
		t.Errorf("Expected failed after one attempt, got %s after %d", got.State, got.Attempts)
	}
}

func TestWorkerRequeuesInterruptedTasks(t *testing.T) {
	w, sender, store, _ := newTestWorker(t, 3)
	task, _ := store.Enqueue("REBOOT_NODE 7")
	task.State = StateRunning
	if err := store.Update(task); err != nil {
		t.Fatal(err)
	}
	sender.push(hub.Response{"QUEUED REBOOT_NODE 7 1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := store.Get(task.ID); got.State == StateSucceeded {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got, _ := store.Get(task.ID); got.State != StateSucceeded {
		t.Errorf("Interrupted task should be retried at startup, got %s", got.State)
	}
}
