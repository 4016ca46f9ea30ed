/*
Package log provides structured logging for sentinel using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("discovery-registrar")     │          │
	│  │  - WithRunID("run-abc123")                  │          │
	│  │  - WithService("billing")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  JSON for machines, console for humans      │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

# Usage

Initialize once at process start, before anything else logs:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Then log through the global logger or a scoped child:

	log.Info("sentinel starting")

	logger := log.WithRunID(runID)
	logger.Error().Err(err).Str("state", "RUNNING").Msg("state publish failed")

The lifecycle supervisor scopes its logger by run id, and the discovery
registrar and resolver scope theirs by component, so every line carries
enough context to be filtered without grepping message text.

# Levels

Debug is for high-volume trace output (every watch firing, every message
dequeue), Info for lifecycle milestones, Warn for recoverable trouble
(idempotent deletes that raced, a callback that returned an error), and
Error for failures that change observable state, such as a coordinator
write error forcing a run to FAILED.

# Output management

Sentinel does not rotate its own logs. In production, write JSON to stdout
and let the process supervisor or log pipeline handle rotation and
shipping.
*/
package log
