package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/noteflow/noteflow/internal/document"
)

var addCmd = &cobra.Command{
	Use:   "add <document> <content>...",
	Short: "Append a todo to a document",
	Long: `Append a new todo node to the end of a document file.

The due date accepts natural language:

  noteflow add notes.json "Buy milk" --due tomorrow
  noteflow add notes.json Ship the release --due "next friday"

The todo is picked up by a running watcher, or by the next sync.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		content := strings.Join(args[1:], " ")

		attrs := document.TodoAttrs{}
		attrs.ProjectID, _ = cmd.Flags().GetString("project")
		attrs.AssignedTo, _ = cmd.Flags().GetString("assignee")

		if due, _ := cmd.Flags().GetString("due"); due != "" {
			w := when.New(nil)
			w.Add(en.All...)
			w.Add(common.All...)

			r, err := w.Parse(due, time.Now())
			if err != nil {
				return fmt.Errorf("failed to parse due date: %w", err)
			}
			if r == nil {
				return fmt.Errorf("could not understand due date %q", due)
			}
			attrs.DueDate = &r.Time
		}

		doc, err := document.Load(path)
		if err != nil {
			return err
		}

		node := document.AppendTodo(doc, content, attrs)
		if err := document.Save(path, doc); err != nil {
			return err
		}

		fmt.Printf("Added todo %s to %s\n", node.Attrs.ID, path)
		if node.Attrs.DueDate != nil {
			fmt.Printf("Due: %s\n", node.Attrs.DueDate.Format("Mon Jan 2 15:04"))
		}
		return nil
	},
}

func init() {
	addCmd.Flags().String("project", "", "Project identifier")
	addCmd.Flags().String("assignee", "", "Assignee identifier")
	addCmd.Flags().String("due", "", "Due date (natural language accepted)")
	rootCmd.AddCommand(addCmd)
}
