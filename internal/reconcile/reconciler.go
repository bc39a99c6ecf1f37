package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/schema"
)

// Result aggregates one reconciliation pass. Synced counts todos that ended
// the pass consistent with the store (created, updated or already in sync);
// Failed counts todos whose fetch or write failed.
type Result struct {
	Synced    int
	Failed    int
	Created   int
	Updated   int
	Unchanged int
	Duration  time.Duration
}

// Err returns a non-nil error when any todo in the pass failed.
func (r Result) Err() error {
	if r.Failed > 0 {
		return fmt.Errorf("%d of %d todos failed to sync", r.Failed, r.Failed+r.Synced)
	}
	return nil
}

// Reconciler runs reconciliation passes against a Store on behalf of one
// owning user.
type Reconciler struct {
	store  Store
	owner  string
	logger *log.Logger
	events EventSink

	now func() time.Time
}

// New creates a Reconciler. The owner identifier is recorded as created_by
// on every record the reconciler inserts. If logger is nil, a default logger
// writing to stderr is used.
func New(store Store, owner string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Reconciler{
		store:  store,
		owner:  owner,
		logger: logger,
		now:    time.Now,
	}
}

// SetEventSink attaches an observer for per-todo and per-pass events.
func (r *Reconciler) SetEventSink(sink EventSink) {
	r.events = sink
}

// Reconcile runs one pass over the extracted todos, sequentially and in
// document order. Per-todo errors are counted and the pass continues with
// the next todo; only the aggregate result reports failure.
func (r *Reconciler) Reconcile(ctx context.Context, todos []document.Todo) Result {
	start := r.now()
	var res Result

	for _, todo := range todos {
		if err := r.reconcileOne(ctx, todo, &res); err != nil {
			r.logger.Printf("WARNING: failed to sync todo %s: %v", todo.ID, err)
			res.Failed++
			continue
		}
		res.Synced++
	}

	res.Duration = r.now().Sub(start)
	r.logger.Printf("Pass complete: synced=%d (created=%d, updated=%d, unchanged=%d), failed=%d",
		res.Synced, res.Created, res.Updated, res.Unchanged, res.Failed)

	if r.events != nil {
		r.events.PassComplete(res)
	}
	return res
}

// reconcileOne makes the create-or-update decision for a single todo.
func (r *Reconciler) reconcileOne(ctx context.Context, todo document.Todo, res *Result) error {
	remote, err := r.store.GetTodo(ctx, todo.ID)
	switch {
	case errors.Is(err, schema.ErrNotFound):
		rec := r.recordFromTodo(todo)
		if err := r.store.InsertTodo(ctx, rec); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		res.Created++
		if r.events != nil {
			r.events.TodoCreated(rec)
		}
		return nil

	case err != nil:
		return fmt.Errorf("fetch: %w", err)
	}

	upd, changed := Diff(remote, todo)
	if !changed {
		res.Unchanged++
		return nil
	}

	upd.UpdatedAt = r.now()
	if err := r.store.UpdateTodo(ctx, todo.ID, upd); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	res.Updated++
	if r.events != nil {
		r.events.TodoUpdated(todo.ID, upd.Fields())
	}
	return nil
}

// recordFromTodo builds the record inserted for a todo with no remote
// counterpart. The node's creation timestamp is preserved; updated_at falls
// back to created_at when the node has never been edited.
func (r *Reconciler) recordFromTodo(todo document.Todo) *schema.TodoRecord {
	updatedAt := todo.CreatedAt
	if todo.UpdatedAt != nil {
		updatedAt = *todo.UpdatedAt
	}
	return &schema.TodoRecord{
		ID:         todo.ID,
		Content:    todo.Content,
		Completed:  todo.Completed,
		ProjectID:  todo.ProjectID,
		AssignedTo: todo.AssignedTo,
		DueDate:    todo.DueDate,
		CreatedBy:  r.owner,
		CreatedAt:  todo.CreatedAt,
		UpdatedAt:  updatedAt,
	}
}
