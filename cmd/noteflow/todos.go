package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/noteflow/noteflow/internal/store"
)

var (
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	openStyle    = lipgloss.NewStyle()
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var todosCmd = &cobra.Command{
	Use:   "todos",
	Short: "List synced todos from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		var filter store.ListFilter
		filter.ProjectID, _ = cmd.Flags().GetString("project")
		filter.AssignedTo, _ = cmd.Flags().GetString("assignee")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		if cmd.Flags().Changed("completed") {
			completed, _ := cmd.Flags().GetBool("completed")
			filter.Completed = &completed
		}
		if overdue, _ := cmd.Flags().GetBool("overdue"); overdue {
			now := time.Now()
			filter.DueBefore = &now
			open := false
			filter.Completed = &open
		}

		todos, err := db.ListTodos(context.Background(), filter)
		if err != nil {
			return err
		}

		if len(todos) == 0 {
			fmt.Println("No todos found.")
			return nil
		}

		now := time.Now()
		for _, t := range todos {
			box := "[ ]"
			style := openStyle
			if t.Completed {
				box = "[x]"
				style = doneStyle
			}

			line := fmt.Sprintf("%s %s", box, t.Content)
			if !t.Completed && t.DueDate != nil && t.DueDate.Before(now) {
				style = overdueStyle
			}
			fmt.Print(style.Render(line))

			var meta []string
			if t.AssignedTo != "" {
				meta = append(meta, "@"+t.AssignedTo)
			}
			if t.ProjectID != "" {
				meta = append(meta, "#"+t.ProjectID)
			}
			if t.DueDate != nil {
				meta = append(meta, "due "+t.DueDate.Format("2006-01-02"))
			}
			if len(meta) > 0 {
				fmt.Print("  ", metaStyle.Render(strings.Join(meta, " ")))
			}
			fmt.Println()
		}

		fmt.Println()
		fmt.Printf("%d todo(s)\n", len(todos))
		return nil
	},
}

func init() {
	todosCmd.Flags().String("project", "", "Filter by project identifier")
	todosCmd.Flags().String("assignee", "", "Filter by assignee")
	todosCmd.Flags().Bool("completed", false, "Filter by completion state")
	todosCmd.Flags().Bool("overdue", false, "Show only overdue open todos")
	todosCmd.Flags().Int("limit", 0, "Limit the number of results (0 = all)")
	rootCmd.AddCommand(todosCmd)
}
