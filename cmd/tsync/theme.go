package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/tasksync/internal/legacy"
	"github.com/localfirst/tasksync/internal/store"
)

var themeClearFlag bool

var themeCmd = &cobra.Command{
	Use:   "theme [name]",
	Short: "Show, set, or clear the UI theme",
	Long: `The theme is stored in the metadata collection and carried through
backups and the legacy flat document.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if themeClearFlag {
			if err := a.store.DeleteMeta(ctx, legacy.MetaTheme); err != nil {
				fatal(err)
			}
			fmt.Println("Theme cleared")
			return
		}

		if len(args) == 1 {
			if err := a.store.PutMeta(ctx, legacy.MetaTheme, args[0]); err != nil {
				fatal(err)
			}
			fmt.Printf("Theme set to %s\n", args[0])
			return
		}

		var theme string
		err = a.store.GetMeta(ctx, legacy.MetaTheme, &theme)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("No theme set.")
			return
		}
		if err != nil {
			fatal(err)
		}
		fmt.Println(theme)
	},
}

func init() {
	themeCmd.Flags().BoolVar(&themeClearFlag, "clear", false, "remove the stored theme")
	rootCmd.AddCommand(themeCmd)
}
