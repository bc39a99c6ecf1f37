// Package schema provides the data structures shared between the document
// layer and the remote todo store.
package schema

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by store lookups when no record exists for the
// given identifier. Absence is an expected condition, not a failure: the
// reconciler uses it to choose the create path.
var ErrNotFound = errors.New("todo not found")

// TodoRecord is the persisted counterpart of an embedded to-do node,
// keyed by the node's stable identifier. Field names follow the store's
// snake_case convention; the document layer maps its camelCase attributes
// onto these fields during extraction.
type TodoRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Completed bool   `json:"completed"`

	ProjectID  string     `json:"project_id,omitempty"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the record carries the fields the store requires.
func (r *TodoRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.CreatedBy == "" {
		return fmt.Errorf("created_by is required")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// TodoUpdate is a partial update of a TodoRecord. Nil pointer fields are
// left untouched by the store. UpdatedAt is always written.
//
// A due date can either be replaced (DueDate non-nil) or removed
// (ClearDueDate true); the two are mutually exclusive.
type TodoUpdate struct {
	Content      *string
	Completed    *bool
	ProjectID    *string
	AssignedTo   *string
	DueDate      *time.Time
	ClearDueDate bool

	UpdatedAt time.Time
}

// IsEmpty reports whether the update would change no comparable field.
func (u *TodoUpdate) IsEmpty() bool {
	return u.Content == nil &&
		u.Completed == nil &&
		u.ProjectID == nil &&
		u.AssignedTo == nil &&
		u.DueDate == nil &&
		!u.ClearDueDate
}

// Fields returns the names of the comparable fields this update touches,
// in a stable order. Used for logging and event broadcasting.
func (u *TodoUpdate) Fields() []string {
	var fields []string
	if u.Content != nil {
		fields = append(fields, "content")
	}
	if u.Completed != nil {
		fields = append(fields, "completed")
	}
	if u.ProjectID != nil {
		fields = append(fields, "project_id")
	}
	if u.AssignedTo != nil {
		fields = append(fields, "assigned_to")
	}
	if u.DueDate != nil || u.ClearDueDate {
		fields = append(fields, "due_date")
	}
	return fields
}
