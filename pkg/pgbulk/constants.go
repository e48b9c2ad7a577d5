package pgbulk

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Load completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or options
	ExitConnectionError = 11 // Failed to connect to database
	ExitLoadIncomplete  = 12 // Not every partition reported success
	ExitPromotionFailed = 13 // Staging table could not be promoted
	ExitSourceError     = 14 // Dataset could not be opened or read
	ExitApprovalDenied  = 15 // User declined dropping tables
)

const (
	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of connection retry attempts.
	DefaultRetryMaxAttempts = 3

	// DefaultTaskRetryDelay is the initial delay before a failed partition task is re-run.
	DefaultTaskRetryDelay = 500 * time.Millisecond

	// DefaultMaxTaskAttempts is the number of times a partition task runs before the load gives up on it.
	DefaultMaxTaskAttempts = 4

	// DefaultParallelism is the number of partition tasks uploading at once.
	DefaultParallelism = 4

	// DefaultDelimiter separates fields in the COPY text stream.
	DefaultDelimiter = ","

	// DefaultDateFormat is the Go layout used to render date columns.
	DefaultDateFormat = "2006-01-02"

	// DefaultTimestampFormat is the Go layout used to render timestamp columns.
	DefaultTimestampFormat = "2006-01-02 15:04:05.999999"

	// DefaultTimeZone is the location timestamps are rendered in.
	DefaultTimeZone = "UTC"

	// NullToken is written for absent values and declared as the COPY NULL string.
	NullToken = "NULL"

	// MaxIdentifierLength is PostgreSQL's NAMEDATALEN-1; longer identifiers are truncated by the server.
	MaxIdentifierLength = 63

	// StagingSuffixLength is the length of the hex suffix appended to staging table names.
	StagingSuffixLength = 32

	// DefaultConfigFileName is the project configuration file looked up by the CLI.
	DefaultConfigFileName = "pgbulk.yaml"

	// DefaultForceApprovalCountdown is the countdown before a forced cleanup drops tables.
	DefaultForceApprovalCountdown = 5 * time.Second

	// DefaultCounterKeyPrefix namespaces distributed success counters in Redis.
	DefaultCounterKeyPrefix = "pgbulk:success:"
)
