package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/engine"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture point-in-time snapshots of engine state",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture the current committed state into a new snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := engine.Open(loadConfig(cmd))
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer e.Close()

		id, err := e.Snapshot()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
}
