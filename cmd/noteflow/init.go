package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/noteflow/noteflow/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup: write a .noteflow.yaml config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		if cfg.Owner == "" {
			cfg.Owner = defaultOwner()
		}

		portStr := strconv.Itoa(cfg.DashboardPort)
		enableDashboard := cfg.DashboardPort != 0

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Documents directory").
					Description("Directory of document JSON files to watch").
					Value(&cfg.Documents),
				huh.NewInput().
					Title("Database path").
					Description("Location of the embedded SQLite database").
					Value(&cfg.Database),
				huh.NewInput().
					Title("Owner").
					Description("Recorded as created_by on new todo records").
					Value(&cfg.Owner),
			),
			huh.NewGroup(
				huh.NewConfirm().
					Title("Enable the WebSocket dashboard?").
					Value(&enableDashboard),
				huh.NewInput().
					Title("Dashboard port").
					Value(&portStr).
					Validate(func(s string) error {
						_, err := strconv.Atoi(s)
						return err
					}),
			),
		)

		if err := form.Run(); err != nil {
			return err
		}

		if enableDashboard {
			cfg.DashboardPort, _ = strconv.Atoi(portStr)
			if cfg.DashboardPort == 0 {
				cfg.DashboardPort = 8080
			}
		} else {
			cfg.DashboardPort = 0
		}

		path := config.DefaultFileName
		if _, err := os.Stat(path); err == nil {
			overwrite := false
			confirm := huh.NewConfirm().
				Title(fmt.Sprintf("%s exists. Overwrite?", path)).
				Value(&overwrite)
			if err := confirm.Run(); err != nil {
				return err
			}
			if !overwrite {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := config.Write(path, cfg); err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", path)
		fmt.Println("Run `noteflow watch` to start syncing.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
