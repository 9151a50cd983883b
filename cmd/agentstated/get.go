package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
)

var getCmd = &cobra.Command{
	Use:   "get <namespace> <id>",
	Short: "Read an object, optionally as of a past commit_seq",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		atSeq, _ := cmd.Flags().GetUint64("at-seq")

		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		obj, err := e.Get(args[0], args[1], atSeq)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	},
}

func init() {
	getCmd.Flags().Uint64("at-seq", 0, "Read the version visible as of this commit_seq (0 means latest)")
}
