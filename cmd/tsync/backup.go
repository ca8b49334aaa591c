package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/tasksync/internal/backup"
	"github.com/localfirst/tasksync/internal/legacy"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Backup and restore the local store",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Write a backup snapshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		svc := backup.NewService(a.store)
		snap, err := svc.Create(ctx)
		if err != nil {
			fatal(err)
		}
		if err := backup.WriteFile(snap, args[0]); err != nil {
			fatal(err)
		}

		fmt.Printf("Backed up %d task(s), %d tag(s) to %s\n",
			len(snap.Data.Tasks), len(snap.Data.Tags), args[0])
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore the store from a snapshot (replaces ALL local data)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		snap, err := backup.ReadFile(args[0])
		if err != nil {
			fatal(err)
		}

		svc := backup.NewService(a.store, backup.WithMirrorPath(a.cfg.MirrorPath))
		if err := svc.Restore(ctx, snap); err != nil {
			fatal(err)
		}

		fmt.Printf("Restored %d task(s), %d tag(s)\n",
			len(snap.Data.Tasks), len(snap.Data.Tags))
	},
}

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Exchange data with the legacy flat format",
}

var legacyExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Project the store into a legacy flat document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := legacy.ExportFile(ctx, a.store, args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("Exported flat document to %s\n", args[0])
	},
}

var legacyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a legacy flat document into the store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := legacy.ImportFile(ctx, a.store, args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("Imported flat document from %s\n", args[0])
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd)
	legacyCmd.AddCommand(legacyExportCmd, legacyImportCmd)
	rootCmd.AddCommand(backupCmd, legacyCmd)
}
