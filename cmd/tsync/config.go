package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/localfirst/tasksync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with defaults",
	Run: func(cmd *cobra.Command, args []string) {
		path := filepath.Join(config.DataDir(), "tasksync.yaml")
		if err := config.WriteFile(path); err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
