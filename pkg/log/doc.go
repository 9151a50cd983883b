/*
Package log provides structured logging for agentstate using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-, namespace- and commit_seq-scoped loggers, configurable log levels, and
helper functions for common logging patterns. All logs include
timestamps and support filtering by severity level.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("agentstated starting")

	nsLog := log.WithNamespace("agents/worker-7")
	nsLog.Info().Uint64("commit_seq", 101).Msg("object committed")

# Context Loggers

  - WithComponent: tags logs with a subsystem name (wal, heap, watch, ...)
  - WithNamespace: tags logs with the namespace an operation touched
  - WithCommitSeq: tags logs with the commit_seq an operation produced

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
