// Package document models rich-text documents as node trees with embedded
// interactive to-do nodes.
//
// A document is a tree of block nodes (doc, paragraph, heading, todo, ...)
// whose leaves are inline text nodes. Documents round-trip through a JSON
// representation, which is also the on-disk format consumed by the watch
// daemon.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Node types that carry structural meaning for extraction. Any other type
// is treated as an opaque block and traversed for nested todos.
const (
	TypeDoc       = "doc"
	TypeParagraph = "paragraph"
	TypeHeading   = "heading"
	TypeTodo      = "todo"
)

// Node is one node of a document tree. A node with a non-empty Text and no
// Type is an inline text leaf; everything else is a block with children.
type Node struct {
	Type     string     `json:"type,omitempty"`
	Text     string     `json:"text,omitempty"`
	Attrs    *TodoAttrs `json:"attrs,omitempty"`
	Children []*Node    `json:"children,omitempty"`
}

// TodoAttrs holds the persistent attributes of a todo node. Attribute names
// use the editor's camelCase convention; the extraction layer maps them onto
// the store's snake_case fields.
type TodoAttrs struct {
	// ID is assigned once when the node is first observed and never changes.
	ID string `json:"id,omitempty"`

	Completed  bool       `json:"completed"`
	ProjectID  string     `json:"projectId,omitempty"`
	AssignedTo string     `json:"assignedTo,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`

	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// IsText reports whether the node is an inline text leaf.
func (n *Node) IsText() bool {
	return n.Type == "" && n.Text != ""
}

// IsTodo reports whether the node is an embedded todo block.
func (n *Node) IsTodo() bool {
	return n.Type == TypeTodo
}

// InlineText concatenates the text of the node's direct children.
// Non-text children contribute nothing.
func (n *Node) InlineText() string {
	var s string
	for _, c := range n.Children {
		if c.IsText() {
			s += c.Text
		}
	}
	return s
}

// Walk visits every node of the tree in document order, parents before
// children. If fn returns false the walk stops.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Parse decodes a document from its JSON representation.
func Parse(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if root.Type == "" && len(root.Children) == 0 && root.Text == "" {
		return nil, fmt.Errorf("document is empty")
	}
	return &root, nil
}

// Marshal encodes the document as pretty-printed JSON.
func (n *Node) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Load reads and parses a document file from the given path.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid document %s: %w", path, err)
	}
	return doc, nil
}

// Save writes the document back to disk as JSON.
func Save(path string, doc *Node) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}
