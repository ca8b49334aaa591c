package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect operations that exhausted their sync retries",
	Long: `Operations that fail delivery more times than their retry budget are
moved out of the pending queue into the dead-letter collection instead
of being discarded. List them here, requeue one for another round of
attempts, or drop it for good.`,
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered operations",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		dead, err := a.store.ListDeadLetters(ctx)
		if err != nil {
			fatal(err)
		}

		if len(dead) == 0 {
			fmt.Println("No dead-lettered operations.")
			return
		}
		for _, op := range dead {
			fmt.Printf("%s  %s %s  queued %s  (%d attempts)\n",
				shortID(op.ID), op.Op, op.EntityType,
				op.Timestamp.Format("2006-01-02 15:04:05"), op.RetryCount)
		}
	},
}

var deadletterRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Move a dead-lettered operation back into the pending queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.engine.Requeue(ctx, args[0]); err != nil {
			fatal(err)
		}
		a.flush(ctx)

		fmt.Printf("Requeued %s\n", args[0])
	},
}

var deadletterRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Discard a dead-lettered operation permanently",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.store.DeleteDeadLetter(ctx, args[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("Discarded %s\n", args[0])
	},
}

func init() {
	deadletterCmd.AddCommand(deadletterListCmd, deadletterRequeueCmd, deadletterRmCmd)
	rootCmd.AddCommand(deadletterCmd)
}
