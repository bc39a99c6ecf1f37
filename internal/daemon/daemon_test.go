package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/notify"
	"github.com/noteflow/noteflow/internal/session"
	"github.com/noteflow/noteflow/internal/store"
)

func testDaemonConfig() *Config {
	logger := log.New(io.Discard, "", 0)
	return &Config{
		Session: &session.Config{
			Debounce:    10 * time.Millisecond,
			RetryDelay:  20 * time.Millisecond,
			MaxAttempts: 3,
			Logger:      logger,
		},
		Notifier: notify.Discard(),
		Logger:   logger,
	}
}

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return db
}

// writeDoc writes a single-todo document. An empty id leaves the identifier
// for the daemon to assign.
func writeDoc(t *testing.T, path, id, content string, completed bool) {
	t.Helper()
	doc := &document.Node{
		Type: document.TypeDoc,
		Children: []*document.Node{
			{
				Type:  document.TypeTodo,
				Attrs: &document.TodoAttrs{ID: id, Completed: completed, CreatedAt: time.Now().UTC()},
				Children: []*document.Node{
					{Text: content},
				},
			},
		},
	}
	if err := document.Save(path, doc); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
}

// startDaemon runs d.Start on its own goroutine and returns a shutdown func
// that cancels it and waits for it to exit.
func startDaemon(t *testing.T, d *Daemon) (shutdown func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("daemon exited with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not shut down")
		}
	}
}

func TestNew_Validation(t *testing.T) {
	db := openTestStore(t)

	tests := []struct {
		name    string
		store   *store.DB
		docsDir string
		owner   string
	}{
		{"nil store", nil, t.TempDir(), "alice"},
		{"empty docs dir", db, "", "alice"},
		{"empty owner", db, t.TempDir(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d *Daemon
			var err error
			if tt.store == nil {
				d, err = NewWithConfig(nil, tt.docsDir, tt.owner, testDaemonConfig())
			} else {
				d, err = NewWithConfig(tt.store, tt.docsDir, tt.owner, testDaemonConfig())
			}
			if err == nil {
				t.Error("expected an error")
			}
			if d != nil {
				t.Error("expected nil daemon")
			}
		})
	}
}

func TestDaemon_InitialSync(t *testing.T) {
	db := openTestStore(t)
	docsDir := t.TempDir()
	writeDoc(t, filepath.Join(docsDir, "notes.json"), "todo-1", "Buy milk", false)

	d, err := NewWithConfig(db, docsDir, "alice", testDaemonConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	shutdown := startDaemon(t, d)
	defer shutdown()

	time.Sleep(200 * time.Millisecond)

	rec, err := db.GetTodo(context.Background(), "todo-1")
	if err != nil {
		t.Fatalf("record not created by initial sync: %v", err)
	}
	if rec.Content != "Buy milk" || rec.CreatedBy != "alice" {
		t.Errorf("record = %+v", rec)
	}
	if got := d.SessionCount(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestDaemon_AssignsAndPersistsIdentifiers(t *testing.T) {
	db := openTestStore(t)
	docsDir := t.TempDir()
	path := filepath.Join(docsDir, "notes.json")
	writeDoc(t, path, "", "Call the plumber", false)

	d, err := NewWithConfig(db, docsDir, "alice", testDaemonConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	shutdown := startDaemon(t, d)
	defer shutdown()

	time.Sleep(300 * time.Millisecond)

	// The generated identifier must be written back into the file.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read document: %v", err)
	}
	var doc document.Node
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("failed to parse rewritten document: %v", err)
	}
	todoNode := doc.Children[0]
	if todoNode.Attrs == nil || todoNode.Attrs.ID == "" {
		t.Fatal("generated identifier was not persisted into the document")
	}

	// Exactly one record: the rewrite-triggered pass must not create a
	// duplicate under a second identifier.
	count, err := db.CountTodos(context.Background())
	if err != nil {
		t.Fatalf("CountTodos: %v", err)
	}
	if count != 1 {
		t.Errorf("records = %d, want 1", count)
	}
	if _, err := db.GetTodo(context.Background(), todoNode.Attrs.ID); err != nil {
		t.Errorf("record missing for persisted identifier: %v", err)
	}
}

func TestDaemon_SyncsEditedDocument(t *testing.T) {
	db := openTestStore(t)
	docsDir := t.TempDir()
	path := filepath.Join(docsDir, "notes.json")
	writeDoc(t, path, "todo-1", "Buy milk", false)

	d, err := NewWithConfig(db, docsDir, "alice", testDaemonConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	shutdown := startDaemon(t, d)
	defer shutdown()

	time.Sleep(200 * time.Millisecond)

	// Complete the todo and wait for the watcher-triggered pass.
	writeDoc(t, path, "todo-1", "Buy milk", true)
	time.Sleep(300 * time.Millisecond)

	rec, err := db.GetTodo(context.Background(), "todo-1")
	if err != nil {
		t.Fatalf("GetTodo: %v", err)
	}
	if !rec.Completed {
		t.Error("completion flag was not synced after the edit")
	}
}

func TestDaemon_NewDocumentOpensSession(t *testing.T) {
	db := openTestStore(t)
	docsDir := t.TempDir()

	d, err := NewWithConfig(db, docsDir, "alice", testDaemonConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	shutdown := startDaemon(t, d)
	defer shutdown()

	time.Sleep(100 * time.Millisecond)
	if got := d.SessionCount(); got != 0 {
		t.Fatalf("sessions = %d, want 0 before any document exists", got)
	}

	writeDoc(t, filepath.Join(docsDir, "new.json"), "todo-9", "Fresh document", false)
	time.Sleep(300 * time.Millisecond)

	if got := d.SessionCount(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
	if _, err := db.GetTodo(context.Background(), "todo-9"); err != nil {
		t.Errorf("record not created for new document: %v", err)
	}
}

func TestDaemon_RemovalClosesSession(t *testing.T) {
	db := openTestStore(t)
	docsDir := t.TempDir()
	path := filepath.Join(docsDir, "notes.json")
	writeDoc(t, path, "todo-1", "Buy milk", false)

	d, err := NewWithConfig(db, docsDir, "alice", testDaemonConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	shutdown := startDaemon(t, d)
	defer shutdown()

	time.Sleep(200 * time.Millisecond)
	if got := d.SessionCount(); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove document: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := d.SessionCount(); got != 0 {
		t.Errorf("sessions = %d, want 0 after removal", got)
	}
}

func TestDaemon_ShutdownRunsFinalPass(t *testing.T) {
	db := openTestStore(t)
	docsDir := t.TempDir()
	path := filepath.Join(docsDir, "notes.json")
	writeDoc(t, path, "todo-1", "Buy milk", false)

	cfg := testDaemonConfig()
	// A wide debounce parks the edit until shutdown's final pass.
	cfg.Session.Debounce = time.Hour
	d, err := NewWithConfig(db, docsDir, "alice", cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	shutdown := startDaemon(t, d)

	time.Sleep(200 * time.Millisecond)
	writeDoc(t, path, "todo-1", "Buy milk", true)
	time.Sleep(100 * time.Millisecond)

	shutdown()

	rec, err := db.GetTodo(context.Background(), "todo-1")
	if err != nil {
		t.Fatalf("GetTodo: %v", err)
	}
	if !rec.Completed {
		t.Error("final pass at shutdown did not persist the last edit")
	}
}
