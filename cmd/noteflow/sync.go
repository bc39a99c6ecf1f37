package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/noteflow/noteflow/internal/document"
	"github.com/noteflow/noteflow/internal/reconcile"
)

var (
	docStyle  = lipgloss.NewStyle().Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "One-shot sync of all documents to the database",
	Long: `Run one reconciliation pass over every document in the documents
directory:

  1. Extracts all todo nodes from each document (assigning identifiers
     where missing, and writing them back to the file)
  2. Creates database records for todos never seen before
  3. Updates records whose comparable fields changed
  4. Leaves unchanged todos untouched`,
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

		rec := reconcile.New(db, cfg.Owner, quietLogger())
		ctx := context.Background()

		entries, err := os.ReadDir(cfg.Documents)
		if err != nil {
			return fmt.Errorf("failed to read documents directory: %w", err)
		}

		var total reconcile.Result
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(cfg.Documents, entry.Name())

			doc, err := document.Load(path)
			if err != nil {
				fmt.Printf("%s %s\n", failStyle.Render("✗"), docStyle.Render(entry.Name()))
				fmt.Printf("  %s\n", dimStyle.Render(err.Error()))
				continue
			}

			todos, assigned := document.ExtractTodos(doc)
			if assigned > 0 {
				if err := document.Save(path, doc); err != nil {
					return fmt.Errorf("failed to persist generated identifiers: %w", err)
				}
			}

			res := rec.Reconcile(ctx, todos)
			total.Synced += res.Synced
			total.Failed += res.Failed
			total.Created += res.Created
			total.Updated += res.Updated
			total.Unchanged += res.Unchanged

			mark := okStyle.Render("✓")
			if res.Failed > 0 {
				mark = failStyle.Render("✗")
			}
			fmt.Printf("%s %s %s\n", mark, docStyle.Render(entry.Name()),
				dimStyle.Render(fmt.Sprintf("(%d todos, %d created, %d updated)",
					len(todos), res.Created, res.Updated)))
		}

		fmt.Println()
		fmt.Printf("Synced %d todos: %d created, %d updated, %d unchanged, %d failed\n",
			total.Synced, total.Created, total.Updated, total.Unchanged, total.Failed)

		return total.Err()
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
