package reconcile

import (
	"time"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/schema"
)

// Diff compares a fetched remote record with a freshly extracted todo of the
// same identifier and returns the partial update that would bring the record
// in line, plus whether any comparable field differs.
//
// Exactly five fields are compared: content, completed, project, assignee
// and due date. Timestamps are excluded; updated_at in particular always
// differs and would otherwise force a write on every pass. The returned
// update carries only the differing fields, so the store writes exactly the
// diff.
func Diff(remote *schema.TodoRecord, todo document.Todo) (schema.TodoUpdate, bool) {
	var upd schema.TodoUpdate

	if remote.Content != todo.Content {
		content := todo.Content
		upd.Content = &content
	}
	if remote.Completed != todo.Completed {
		completed := todo.Completed
		upd.Completed = &completed
	}
	if remote.ProjectID != todo.ProjectID {
		projectID := todo.ProjectID
		upd.ProjectID = &projectID
	}
	if remote.AssignedTo != todo.AssignedTo {
		assignedTo := todo.AssignedTo
		upd.AssignedTo = &assignedTo
	}
	if !equalTimePtr(remote.DueDate, todo.DueDate) {
		if todo.DueDate != nil {
			due := *todo.DueDate
			upd.DueDate = &due
		} else {
			upd.ClearDueDate = true
		}
	}

	return upd, !upd.IsEmpty()
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
