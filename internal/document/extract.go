package document

import (
	"time"

	"github.com/google/uuid"
)

// Todo is the flat value object extracted from one todo node. Content is
// derived from the node's direct inline children at extraction time.
type Todo struct {
	ID         string
	Content    string
	Completed  bool
	ProjectID  string
	AssignedTo string
	DueDate    *time.Time
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// ExtractTodos walks the document in order and returns one Todo per todo
// node encountered. No node is skipped.
//
// A node missing an identifier is assigned a fresh UUID, and the identifier
// is written back into the node's attributes before the extracted list is
// returned. Callers that persist the document must save it whenever the
// returned assigned count is non-zero, otherwise the same conceptual todo
// would change identity on the next extraction and produce duplicate remote
// records. A zero creation timestamp is stamped with the current time under
// the same rule.
func ExtractTodos(root *Node) (todos []Todo, assigned int) {
	root.Walk(func(n *Node) bool {
		if !n.IsTodo() {
			return true
		}
		if n.Attrs == nil {
			n.Attrs = &TodoAttrs{}
		}
		if n.Attrs.ID == "" {
			n.Attrs.ID = uuid.NewString()
			assigned++
		}
		if n.Attrs.CreatedAt.IsZero() {
			n.Attrs.CreatedAt = time.Now().UTC().Truncate(time.Second)
			assigned++
		}
		if n.Attrs.DueDate != nil {
			// The store keeps due dates at second precision; an
			// untruncated value would diff as changed on every pass.
			due := n.Attrs.DueDate.Truncate(time.Second)
			n.Attrs.DueDate = &due
		}
		todos = append(todos, Todo{
			ID:         n.Attrs.ID,
			Content:    n.InlineText(),
			Completed:  n.Attrs.Completed,
			ProjectID:  n.Attrs.ProjectID,
			AssignedTo: n.Attrs.AssignedTo,
			DueDate:    n.Attrs.DueDate,
			CreatedAt:  n.Attrs.CreatedAt,
			UpdatedAt:  n.Attrs.UpdatedAt,
		})
		return true
	})
	return todos, assigned
}

// AppendTodo adds a new todo node with the given content to the end of the
// document and returns it. The node receives a fresh identifier and creation
// timestamp immediately, so a later extraction never reassigns them.
func AppendTodo(root *Node, content string, attrs TodoAttrs) *Node {
	if attrs.ID == "" {
		attrs.ID = uuid.NewString()
	}
	if attrs.CreatedAt.IsZero() {
		attrs.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	if attrs.DueDate != nil {
		due := attrs.DueDate.Truncate(time.Second)
		attrs.DueDate = &due
	}
	node := &Node{
		Type:     TypeTodo,
		Attrs:    &attrs,
		Children: []*Node{{Text: content}},
	}
	root.Children = append(root.Children, node)
	return node
}
