package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/localfirst/tasksync/internal/daemon"
	"github.com/localfirst/tasksync/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the long-lived sync process: the connectivity monitor, the drain
scheduler, the outbox watcher, and the WebSocket dashboard.

Logs go to stderr, or to a rotated file when log_file is configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		var out io.Writer = os.Stderr
		if a.cfg.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   a.cfg.LogFile,
				MaxSize:    a.cfg.LogMaxSizeMB,
				MaxBackups: a.cfg.LogMaxBackups,
			}
		}
		logger := log.New(out, "[daemon] ", log.LstdFlags)

		cfg := daemon.DefaultConfig()
		cfg.OutboxDir = a.cfg.OutboxDir
		cfg.Logger = logger

		d, err := daemon.New(a.queue, a.engine, a.mon, a.bus, cfg)
		if err != nil {
			fatal(err)
		}

		srv := dashboard.NewServer(a.bus, a.engine, &dashboard.Config{
			Port:   a.cfg.DashboardPort,
			Logger: log.New(out, "[dashboard] ", log.LstdFlags),
		})
		if err := srv.Start(); err != nil {
			fatal(err)
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				logger.Printf("Dashboard shutdown error: %v", err)
			}
		}()

		fmt.Fprintf(os.Stderr, "Daemon running (dashboard on %s), Ctrl-C to stop\n", srv.Addr())

		if err := d.Start(ctx); err != nil {
			fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
