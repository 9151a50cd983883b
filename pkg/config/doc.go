/*
Package config defines agentstated's runtime configuration: the data
directory, WAL durability knobs, watch buffer sizing, idempotency
retention, and lease TTL bounds. Configuration loads from a YAML file
and may be overridden by CLI flags bound in cmd/agentstated.

# Defaults

An empty Config is not runnable; call Default() for the recognized
defaults, then Load to override fields from a YAML file;
cmd/agentstated's loadConfig sets DataDir and the logging fields from
its flags. A
zero DataDir means volatile in-memory mode (no WAL, no snapshots) and
is only ever appropriate for development or tests.
*/
package config
