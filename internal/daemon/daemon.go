// Package daemon watches a documents directory and keeps embedded todos
// synchronized with the remote store.
//
// The daemon:
// 1. Performs an initial pass over every document on startup
// 2. Watches the documents directory for file changes
// 3. Routes each change to the per-document session, which debounces and
//    retries
// 4. Tears sessions down (with one final pass) when documents are removed
//    or the daemon shuts down
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/notify"
	"github.com/noteflow/noteflow/internal/reconcile"
	"github.com/noteflow/noteflow/internal/session"
)

// Config holds configuration for the daemon.
type Config struct {
	// Session holds the scheduling knobs applied to every document session.
	Session *session.Config

	// Notifier receives exhausted-retry notifications. Defaults to a
	// stderr logger.
	Notifier notify.Notifier

	// Events receives reconciliation events (e.g. for the dashboard).
	Events reconcile.EventSink

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	logger := log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	return &Config{
		Session:  session.DefaultConfig(),
		Notifier: notify.NewLogNotifier(logger),
		Logger:   logger,
	}
}

// Daemon orchestrates file watching and per-document sync sessions.
type Daemon struct {
	store   reconcile.Store
	docsDir string
	owner   string
	config  *Config
	rec     *reconcile.Reconciler

	watcher    *fsnotify.Watcher
	sessions   map[string]*session.Session
	sessionsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon watching docsDir on behalf of owner.
func New(store reconcile.Store, docsDir, owner string) (*Daemon, error) {
	return NewWithConfig(store, docsDir, owner, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(store reconcile.Store, docsDir, owner string, config *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if docsDir == "" {
		return nil, fmt.Errorf("docsDir cannot be empty")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Session == nil {
		config.Session = session.DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.Notifier == nil {
		config.Notifier = notify.NewLogNotifier(config.Logger)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	rec := reconcile.New(store, owner, config.Logger)
	if config.Events != nil {
		rec.SetEventSink(config.Events)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:    store,
		docsDir:  docsDir,
		owner:    owner,
		config:   config,
		rec:      rec,
		watcher:  watcher,
		sessions: make(map[string]*session.Session),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// An initial pass over every existing document runs first, then the watcher
// feeds edit events to per-document sessions. This blocks until ctx is
// cancelled or the daemon is stopped.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.syncAll(ctx); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if err := d.watcher.Add(d.docsDir); err != nil {
		return fmt.Errorf("failed to watch documents directory: %w", err)
	}

	d.config.Logger.Printf("Watching: %s", d.docsDir)

	d.wg.Add(1)
	go d.watchFileEvents()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Every open session runs its final
// pass before the daemon returns.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d.sessionsMu.Lock()
	sessions := make(map[string]*session.Session, len(d.sessions))
	for path, s := range d.sessions {
		sessions[path] = s
	}
	d.sessions = make(map[string]*session.Session)
	d.sessionsMu.Unlock()

	for path, s := range sessions {
		if err := s.Close(ctx); err != nil {
			d.config.Logger.Printf("Warning: final sync of %s failed: %v", path, err)
		}
	}

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncAll runs one immediate pass for every document currently on disk.
// Individual document failures are logged but don't stop the sweep.
func (d *Daemon) syncAll(ctx context.Context) error {
	entries, err := os.ReadDir(d.docsDir)
	if err != nil {
		return fmt.Errorf("failed to read documents directory: %w", err)
	}

	var synced, failed int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.docsDir, entry.Name())
		if err := d.ensureSession(path).SyncNow(ctx); err != nil {
			d.config.Logger.Printf("WARNING: failed to sync document %s: %v", entry.Name(), err)
			failed++
			continue
		}
		synced++
	}

	d.config.Logger.Printf("Initial sync complete: documents=%d (failed=%d)", synced, failed)
	return nil
}

// watchFileEvents routes filesystem events to document sessions.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				d.ensureSession(event.Name).Trigger()

			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				// A rename delivers a create for the new name separately.
				d.closeSession(event.Name)
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// ensureSession returns the session for a document path, creating and
// starting it on first sight.
func (d *Daemon) ensureSession(path string) *session.Session {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()

	if s, ok := d.sessions[path]; ok {
		return s
	}

	src := &fileSource{path: path, logger: d.config.Logger}
	s := session.New(src, d.rec, d.config.Notifier, d.config.Session)
	s.Start()
	d.sessions[path] = s

	d.config.Logger.Printf("Session opened: %s", filepath.Base(path))
	return s
}

// closeSession tears down the session for a removed document.
func (d *Daemon) closeSession(path string) {
	d.sessionsMu.Lock()
	s, ok := d.sessions[path]
	if ok {
		delete(d.sessions, path)
	}
	d.sessionsMu.Unlock()

	if !ok {
		return
	}

	d.config.Logger.Printf("Session closed: %s", filepath.Base(path))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		d.config.Logger.Printf("Warning: final sync of %s failed: %v", path, err)
	}
}

// SessionCount returns the number of open document sessions.
func (d *Daemon) SessionCount() int {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()
	return len(d.sessions)
}

// fileSource extracts todos from a document file. Identifiers generated
// during extraction are written back to the file so the same conceptual
// todo never changes identity across passes.
type fileSource struct {
	path   string
	logger *log.Logger
}

// Todos implements session.Source. A missing file yields an empty todo
// list: the document is gone and there is nothing left to reconcile, which
// lets a removal's final pass complete cleanly.
func (f *fileSource) Todos(ctx context.Context) ([]document.Todo, error) {
	doc, err := document.Load(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	todos, assigned := document.ExtractTodos(doc)
	if assigned > 0 {
		// The resulting watcher event is harmless: the rewritten document
		// extracts identically, so the triggered pass issues no writes.
		if err := document.Save(f.path, doc); err != nil {
			return nil, fmt.Errorf("failed to persist generated identifiers: %w", err)
		}
		f.logger.Printf("Assigned %d identifier(s) in %s", assigned, filepath.Base(f.path))
	}
	return todos, nil
}
