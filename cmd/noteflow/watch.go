package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noteflow/noteflow/internal/daemon"
	"github.com/noteflow/noteflow/internal/dashboard"
	"github.com/noteflow/noteflow/internal/notify"
	"github.com/noteflow/noteflow/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the documents directory and sync continuously",
	Long: `Run the sync daemon. Every document file gets its own session with
debounced, retried synchronization:

  - file writes trigger a pass (debounced)
  - a periodic timer catches anything missed
  - failed passes retry after a fixed delay, up to a bounded attempt
    count, then surface a notification
  - removing a document closes its session with one final pass

With --dashboard-port set, a WebSocket dashboard broadcasts sync events
to connected clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if p, _ := cmd.Flags().GetInt("dashboard-port"); p != 0 {
			cfg.DashboardPort = p
		}
		if f, _ := cmd.Flags().GetString("log-file"); f != "" {
			cfg.LogFile = f
		}

		var logOut io.Writer = os.Stderr
		if cfg.LogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
			}
		}
		logger := log.New(logOut, "[noteflow] ", log.LstdFlags)

		notifier := notify.Notifier(notify.NewLogNotifier(logger))
		dcfg := daemon.DefaultConfig()
		dcfg.Logger = logger
		dcfg.Session = &session.Config{
			Debounce:    cfg.Debounce,
			RetryDelay:  cfg.RetryDelay,
			MaxAttempts: cfg.MaxAttempts,
			Interval:    cfg.Interval,
			Logger:      logger,
		}

		var server *dashboard.Server
		if cfg.DashboardPort != 0 {
			server = dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: logger,
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Printf("Dashboard shutdown error: %v", err)
				}
			}()

			handler := dashboard.NewHandler(server, logger)
			dcfg.Events = handler
			notifier = notify.Multi(notifier, handler)

			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", cfg.DashboardPort)
		}
		dcfg.Notifier = notifier

		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		d, err := daemon.NewWithConfig(db, cfg.Documents, cfg.Owner, dcfg)
		if err != nil {
			return err
		}

		fmt.Printf("Watching %s (db: %s)\n", cfg.Documents, cfg.Database)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return d.Start(ctx)
	},
}

func init() {
	watchCmd.Flags().Int("dashboard-port", 0, "Serve the WebSocket dashboard on this port (0 = off)")
	watchCmd.Flags().String("log-file", "", "Write rotating logs to this file instead of stderr")
	rootCmd.AddCommand(watchCmd)
}
