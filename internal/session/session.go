// Package session gates how often synchronization passes may run for one
// open document.
//
// A Session owns all scheduling state for a single document/owner pair:
// the debounce bookkeeping, the bounded attempt counter, the pending-rerun
// slot and the cancellable retry timer. Constructing one session per open
// document keeps two documents in the same process from corrupting each
// other's bookkeeping.
//
// Triggers arrive from document edits, a periodic ticker and explicit caller
// requests. A trigger inside the debounce window is dropped; a trigger while
// a pass is running parks in a single pending-rerun slot and the pass
// re-runs once when it finishes. Failed passes are retried after a fixed
// delay up to a bounded attempt count, after which a notification is
// surfaced and the counter resets so the next natural trigger starts fresh.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/notify"
	"github.com/noteflow/noteflow/internal/reconcile"
)

// Source supplies the current todo list of the document, freshly extracted
// at the start of each pass. The watch daemon backs this with a document
// file; tests back it with a fixture.
type Source interface {
	Todos(ctx context.Context) ([]document.Todo, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]document.Todo, error)

// Todos implements Source.
func (f SourceFunc) Todos(ctx context.Context) ([]document.Todo, error) {
	return f(ctx)
}

// Config holds the scheduling knobs. All knobs are explicit parameters
// rather than constants so call sites with different editing cadences can
// share one implementation.
type Config struct {
	// Debounce is the minimum elapsed time between the start of two passes.
	// Triggers arriving sooner are dropped.
	Debounce time.Duration

	// RetryDelay is the fixed delay before a failed pass is retried.
	// Retries use a constant delay, not backoff.
	RetryDelay time.Duration

	// MaxAttempts bounds consecutive failing passes before a failure is
	// surfaced and the counter resets.
	MaxAttempts int

	// Interval is the periodic sync interval. Zero disables the ticker.
	Interval time.Duration

	// Logger for session activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:    2 * time.Second,
		RetryDelay:  2 * time.Second,
		MaxAttempts: 3,
		Interval:    30 * time.Second,
		Logger:      log.New(os.Stderr, "[session] ", log.LstdFlags),
	}
}

// Session schedules synchronization passes for one open document.
type Session struct {
	src      Source
	rec      *reconcile.Reconciler
	notifier notify.Notifier
	cfg      *Config

	mu        sync.Mutex
	running   bool
	pending   bool
	attempts  int
	lastStart time.Time
	retry     *time.Timer
	started   bool
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Session. If notifier is nil, notifications are dropped;
// if cfg is nil, DefaultConfig is used.
func New(src Source, rec *reconcile.Reconciler, notifier notify.Notifier, cfg *Config) *Session {
	if notifier == nil {
		notifier = notify.Discard()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Session{
		src:      src,
		rec:      rec,
		notifier: notifier,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic sync ticker. Safe to call once; a session
// with Interval zero has no ticker and Start is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed || s.cfg.Interval <= 0 {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.request(false)
			}
		}
	}()
}

// Trigger records a document-edit notification. The pass runs asynchronously;
// triggers inside the debounce window are dropped, and triggers during a
// running pass park in the pending-rerun slot.
func (s *Session) Trigger() {
	s.request(false)
}

// SyncNow runs one pass immediately on the caller's goroutine, bypassing the
// debounce. If a pass is already running the call parks a rerun and returns
// nil; the in-flight pass stands in for it.
func (s *Session) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return nil
	}
	s.beginLocked()
	s.mu.Unlock()

	failed, err := s.pass(ctx)
	s.finish(failed)
	return err
}

// Attempts reports the current consecutive-failure attempt counter.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Close tears the session down: the ticker and any pending retry are
// cancelled, any in-flight pass is waited for (not raced), and one final
// forced pass runs so the last document state is persisted.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
	}
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	todos, err := s.src.Todos(ctx)
	if err != nil {
		return fmt.Errorf("final sync: %w", err)
	}
	if err := s.rec.Reconcile(ctx, todos).Err(); err != nil {
		return fmt.Errorf("final sync: %w", err)
	}
	return nil
}

// request applies the scheduling gate and, when the gate opens, runs a pass
// on a fresh goroutine. force bypasses the debounce window (used by retries
// and pending reruns) but never the running guard.
func (s *Session) request(force bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return
	}
	if !force && time.Since(s.lastStart) < s.cfg.Debounce {
		s.mu.Unlock()
		return
	}
	s.beginLocked()
	// Registered before the lock drops so Close's wait cannot miss the
	// pass goroutine.
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		failed, _ := s.pass(context.Background())
		s.finish(failed)
	}()
}

// beginLocked marks a pass as started. Caller holds s.mu.
func (s *Session) beginLocked() {
	s.running = true
	s.attempts++
	s.lastStart = time.Now()
}

// pass extracts the current todos and reconciles them. Reported as failed
// when the source cannot be read or any todo in the pass failed.
func (s *Session) pass(ctx context.Context) (failed bool, err error) {
	todos, err := s.src.Todos(ctx)
	if err != nil {
		s.cfg.Logger.Printf("Failed to read document: %v", err)
		return true, err
	}
	res := s.rec.Reconcile(ctx, todos)
	return res.Failed > 0, res.Err()
}

// finish resolves the pass outcome: reset on success, schedule a fixed-delay
// retry on failure below the attempt bound, surface a notification and reset
// at the bound. A parked rerun request runs once, after the outcome is
// settled.
func (s *Session) finish(failed bool) {
	var exhausted bool

	s.mu.Lock()
	s.running = false
	rerun := s.pending
	s.pending = false
	switch {
	case !failed:
		s.attempts = 0
	case s.attempts >= s.cfg.MaxAttempts:
		s.attempts = 0
		exhausted = true
	case !s.closed:
		s.retry = time.AfterFunc(s.cfg.RetryDelay, func() { s.request(true) })
	}
	if s.closed {
		rerun = false
	}
	s.mu.Unlock()

	if exhausted {
		s.notifier.Notify("Sync failed",
			fmt.Sprintf("Your todos could not be saved after %d attempts. They will be retried on the next edit.", s.cfg.MaxAttempts))
	}
	if rerun {
		s.request(true)
	}
}
