package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstate/agentstate/pkg/config"
	"github.com/agentstate/agentstate/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentstated",
	Short: "agentstated - durable, queryable state store for AI agents",
	Long: `agentstated holds the working state of AI agents: namespaced
JSON objects with version history, tag and JSONPath queries, a
change-feed for watchers, request idempotency, and name-based leases
for mutual exclusion.

Every subcommand operates against the data directory given by
--data-dir (empty means a volatile in-memory store, useful only for
trying commands out).`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("agentstated version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (empty runs in volatile, non-durable mode)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(walCmd)
	rootCmd.AddCommand(leaseCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig builds a config.Config from the persistent --data-dir
// flag, starting from config.Default() the way every subcommand that
// opens an engine needs to.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Default()
	cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	cfg.LogLevel = logLevel
	cfg.LogJSON = logJSON
	return cfg
}
