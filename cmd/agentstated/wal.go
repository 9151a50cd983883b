package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
)

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "Inspect or trim the write-ahead log",
}

var walManifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the current WAL segment manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(e.Manifest())
	},
}

var walTrimCmd = &cobra.Command{
	Use:   "trim <snapshot-id>",
	Short: "Remove WAL segments already covered by a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		return e.TrimWAL(args[0])
	},
}

func init() {
	walCmd.AddCommand(walManifestCmd)
	walCmd.AddCommand(walTrimCmd)
}
