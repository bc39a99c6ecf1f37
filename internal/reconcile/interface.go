// Package reconcile implements the per-todo create-or-update decision that
// keeps remote todo records in step with the todos embedded in a document.
//
// A reconciliation pass walks the extracted todo list once. For each todo it
// fetches the remote record by identifier: absence triggers a create, a
// differing record triggers a partial update, an identical record is a
// success without a write. Individual failures are counted and never abort
// the pass.
package reconcile

import (
	"context"

	"github.com/noteflow/noteflow/internal/schema"
)

// Store is the remote record surface the reconciler needs. The production
// implementation is *store.DB; tests substitute an in-memory fake.
//
// GetTodo must return an error wrapping schema.ErrNotFound when no record
// exists for the identifier; every other error is treated as transient.
type Store interface {
	GetTodo(ctx context.Context, id string) (*schema.TodoRecord, error)
	InsertTodo(ctx context.Context, rec *schema.TodoRecord) error
	UpdateTodo(ctx context.Context, id string, upd schema.TodoUpdate) error
}

// EventSink receives reconciliation events for live observation. All methods
// are fire-and-forget; implementations must not block the pass.
type EventSink interface {
	// TodoCreated is called after a record was inserted.
	TodoCreated(rec *schema.TodoRecord)
	// TodoUpdated is called after a partial update, with the names of the
	// fields that changed.
	TodoUpdated(id string, fields []string)
	// PassComplete is called once per pass with the aggregate result.
	PassComplete(res Result)
}
