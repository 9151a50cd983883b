package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
)

var putCmd = &cobra.Command{
	Use:   "put <namespace> <body-json>",
	Short: "Commit a new version of an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("body is not valid JSON")
		}

		id, _ := cmd.Flags().GetString("id")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		idempotencyKey, _ := cmd.Flags().GetString("idempotency-key")
		tagCSV, _ := cmd.Flags().GetString("tags")
		var tags []string
		if tagCSV != "" {
			tags = strings.Split(tagCSV, ",")
		}

		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		obj, err := e.Put(ctx, engine.PutRequest{
			Namespace:      args[0],
			ID:             id,
			Body:           json.RawMessage(args[1]),
			Tags:           tags,
			TTL:            ttl,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	},
}

func init() {
	putCmd.Flags().String("id", "", "Object id (generated if omitted)")
	putCmd.Flags().Duration("ttl", 0, "Expire this version after the given duration (0 means no expiry)")
	putCmd.Flags().String("idempotency-key", "", "Caller-supplied key to dedupe retries of this exact request")
	putCmd.Flags().String("tags", "", "Comma-separated k:v tags")
}
