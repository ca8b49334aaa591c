package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/localfirst/tasksync/internal/model"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		tag := &model.Tag{Name: args[0], CreatedAt: time.Now()}
		if err := a.store.PutTagIfAbsent(ctx, tag); err != nil {
			fatal(err)
		}

		if _, err := a.queue.Enqueue(ctx, model.OpCreate, "tag", tag); err != nil {
			fatal(err)
		}
		a.flush(ctx)

		fmt.Printf("Added tag #%s\n", tag.Name)
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		tags, err := a.store.ListTags(ctx)
		if err != nil {
			fatal(err)
		}

		if len(tags) == 0 {
			fmt.Println("No tags.")
			return
		}
		for _, tag := range tags {
			fmt.Println(tagStyle.Render("#" + tag.Name))
		}
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a tag (tasks keep their other fields, the tag reference is cleared)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.store.DeleteTag(ctx, args[0]); err != nil {
			fatal(err)
		}

		payload := map[string]string{"name": args[0]}
		if _, err := a.queue.Enqueue(ctx, model.OpDelete, "tag", payload); err != nil {
			fatal(err)
		}
		a.flush(ctx)

		fmt.Printf("Deleted tag #%s\n", args[0])
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd, tagListCmd, tagRmCmd)
	rootCmd.AddCommand(tagCmd)
}
