package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/reconcile"
	"github.com/noteflow/noteflow/internal/schema"
)

// memStore satisfies reconcile.Store for sessions whose sources return empty
// todo lists; the scheduling tests exercise the gate, not the writes.
type memStore struct{}

func (memStore) GetTodo(_ context.Context, id string) (*schema.TodoRecord, error) {
	return nil, fmt.Errorf("todo %s: %w", id, schema.ErrNotFound)
}
func (memStore) InsertTodo(context.Context, *schema.TodoRecord) error { return nil }
func (memStore) UpdateTodo(context.Context, string, schema.TodoUpdate) error {
	return nil
}

// countingSource counts passes and can be flipped between success and
// failure mid-test.
type countingSource struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingSource) Todos(context.Context) ([]document.Todo, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("document unreadable")
	}
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingNotifier) Notify(title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func testConfig() *Config {
	return &Config{
		Debounce:    500 * time.Millisecond,
		RetryDelay:  30 * time.Millisecond,
		MaxAttempts: 3,
		Interval:    0,
		Logger:      log.New(io.Discard, "", 0),
	}
}

func testReconciler(t *testing.T) *reconcile.Reconciler {
	t.Helper()
	return reconcile.New(memStore{}, "tester", log.New(io.Discard, "", 0))
}

func TestTrigger_DebounceDropsRapidEdits(t *testing.T) {
	src := &countingSource{}
	sess := New(src, testReconciler(t), nil, testConfig())

	sess.Trigger()
	time.Sleep(50 * time.Millisecond)
	sess.Trigger()
	sess.Trigger()
	time.Sleep(200 * time.Millisecond)

	if got := src.calls.Load(); got != 1 {
		t.Errorf("passes = %d, want 1 (rapid edits inside the window must be dropped)", got)
	}
}

func TestTrigger_DuringRunningPassParksOneRerun(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc(func(context.Context) ([]document.Todo, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return nil, nil
	})
	sess := New(src, testReconciler(t), nil, testConfig())

	sess.Trigger()
	time.Sleep(50 * time.Millisecond)

	// All three arrive while the first pass is blocked; they collapse into
	// a single parked rerun.
	sess.Trigger()
	sess.Trigger()
	sess.Trigger()
	close(release)
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Errorf("passes = %d, want 2 (one running, one rerun)", got)
	}
}

func TestRetry_BoundedAttemptsThenNotify(t *testing.T) {
	src := &countingSource{}
	src.fail.Store(true)
	notifier := &recordingNotifier{}
	cfg := testConfig()
	cfg.Debounce = 10 * time.Millisecond
	sess := New(src, testReconciler(t), notifier, cfg)

	sess.Trigger()
	time.Sleep(300 * time.Millisecond)

	if got := src.calls.Load(); got != 3 {
		t.Errorf("passes = %d, want 3 (initial plus two retries)", got)
	}
	if got := notifier.count(); got != 1 {
		t.Errorf("notifications = %d, want exactly 1", got)
	}
	if got := sess.Attempts(); got != 0 {
		t.Errorf("attempts = %d, want 0 after the counter resets", got)
	}

	// The session is not wedged: the next edit starts a fresh cycle.
	src.fail.Store(false)
	sess.Trigger()
	time.Sleep(100 * time.Millisecond)

	if got := src.calls.Load(); got != 4 {
		t.Errorf("passes = %d, want 4 after recovery", got)
	}
	if got := notifier.count(); got != 1 {
		t.Errorf("notifications = %d, recovery must not notify again", got)
	}
}

func TestRetry_SuccessResetsCounter(t *testing.T) {
	src := &countingSource{}
	src.fail.Store(true)
	cfg := testConfig()
	sess := New(src, testReconciler(t), nil, cfg)

	sess.Trigger()
	time.Sleep(50 * time.Millisecond)
	if got := sess.Attempts(); got != 1 {
		t.Fatalf("attempts = %d, want 1 after the first failure", got)
	}

	src.fail.Store(false)
	time.Sleep(100 * time.Millisecond) // first retry fires and succeeds

	if got := sess.Attempts(); got != 0 {
		t.Errorf("attempts = %d, want 0 after a successful retry", got)
	}
}

func TestSyncNow_RunsSynchronously(t *testing.T) {
	src := &countingSource{}
	sess := New(src, testReconciler(t), nil, testConfig())

	if err := sess.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("passes = %d, want 1", got)
	}

	// Bypasses the debounce.
	if err := sess.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("passes = %d, want 2", got)
	}
}

func TestSyncNow_ReportsSourceError(t *testing.T) {
	src := &countingSource{}
	src.fail.Store(true)
	cfg := testConfig()
	cfg.RetryDelay = time.Hour // keep the retry from firing during the test
	sess := New(src, testReconciler(t), nil, cfg)

	if err := sess.SyncNow(context.Background()); err == nil {
		t.Error("SyncNow must surface the pass error")
	}
}

func TestClose_RunsFinalPass(t *testing.T) {
	src := &countingSource{}
	sess := New(src, testReconciler(t), nil, testConfig())
	sess.Start()

	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("passes = %d, want 1 final pass at teardown", got)
	}

	// Idempotent; no second final pass.
	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("passes = %d after double close, want 1", got)
	}

	if err := sess.SyncNow(context.Background()); err == nil {
		t.Error("SyncNow after Close must fail")
	}
}

func TestClose_WaitsForInFlightPass(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc(func(context.Context) ([]document.Todo, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return nil, nil
	})
	sess := New(src, testReconciler(t), nil, testConfig())

	sess.Trigger()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- sess.Close(context.Background()) }()

	// Close must block on the in-flight pass, not race past it.
	select {
	case <-closed:
		t.Fatal("Close returned while a pass was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("passes = %d, want the blocked pass plus one final pass", got)
	}
}

func TestClose_CancelsPendingRetry(t *testing.T) {
	src := &countingSource{}
	src.fail.Store(true)
	cfg := testConfig()
	cfg.RetryDelay = 50 * time.Millisecond
	sess := New(src, testReconciler(t), nil, cfg)

	sess.Trigger()
	time.Sleep(20 * time.Millisecond) // pass failed, retry armed

	src.fail.Store(false)
	if err := sess.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	calls := src.calls.Load()

	time.Sleep(100 * time.Millisecond)
	if got := src.calls.Load(); got != calls {
		t.Errorf("retry fired after Close: passes went from %d to %d", calls, got)
	}
}

func TestPeriodicInterval(t *testing.T) {
	src := &countingSource{}
	cfg := testConfig()
	cfg.Debounce = 10 * time.Millisecond
	cfg.Interval = 60 * time.Millisecond
	sess := New(src, testReconciler(t), nil, cfg)
	sess.Start()
	defer sess.Close(context.Background())

	time.Sleep(200 * time.Millisecond)

	if got := src.calls.Load(); got < 2 {
		t.Errorf("passes = %d, want at least 2 from the ticker", got)
	}
}
