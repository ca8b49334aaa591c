package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/localfirst/tasksync/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force a sync pass now",
	Long: `Drain the pending-operation queue against the remote endpoint.

Unlike the automatic background triggers this fails when offline.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.engine.ForceSync(ctx); err != nil {
			if errors.Is(err, engine.ErrOffline) {
				fmt.Fprintln(os.Stderr, "Error: offline, cannot sync")
				os.Exit(1)
			}
			fatal(err)
		}

		status, err := a.engine.Status(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Sync complete, %d operation(s) still pending\n", status.PendingCount)
	},
}

var (
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		status, err := a.engine.Status(ctx)
		if err != nil {
			fatal(err)
		}

		state := offlineStyle.Render("offline")
		if status.Online {
			state = onlineStyle.Render("online")
		}
		fmt.Printf("Connectivity: %s\n", state)
		fmt.Printf("Pending operations: %d\n", status.PendingCount)
		if status.LastSyncTime != nil {
			fmt.Printf("Last sync: %s\n", status.LastSyncTime.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("Last sync: never")
		}

		dead, err := a.store.ListDeadLetters(ctx)
		if err != nil {
			fatal(err)
		}
		if len(dead) > 0 {
			fmt.Printf("Dead-lettered operations: %d (see 'tsync deadletter list')\n", len(dead))
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)
}
