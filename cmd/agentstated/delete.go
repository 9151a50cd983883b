package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <namespace> <id>",
	Short: "Commit a tombstone for an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idempotencyKey, _ := cmd.Flags().GetString("idempotency-key")

		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.Delete(ctx, engine.DeleteRequest{
			Namespace:      args[0],
			ID:             args[1],
			IdempotencyKey: idempotencyKey,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("idempotency-key", "", "Caller-supplied key to dedupe retries of this exact request")
}
