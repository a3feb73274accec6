/*
Package log provides structured logging for dirstore using zerolog.

It wraps zerolog to provide JSON-structured logging with component-specific
child loggers, configurable severity levels, and helper functions for the
common one-line logging patterns used throughout the coordinator and CLI.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("store opened")

	storeLog := log.WithPartition("ou=system")
	storeLog.Debug().Uint64("entry_id", id).Msg("entry added")

# Context loggers

WithComponent attaches a "component" field (e.g. "partition", "index",
"recman"). WithPartition and WithEntryID attach the fields the coordinator
needs on every mutation log line so that a single entry's history can be
grepped out of a JSON log stream.

# Levels

Debug is for per-mutation index bookkeeping, Info for lifecycle events
(open/close/sync), Warn for recoverable failures (a caller error such as
NoSuchObject), and Error for anything that latches the store as
inconsistent. Fatal exits the process and is reserved for the CLI's own
startup failures, never called from inside the coordinator.
*/
package log
