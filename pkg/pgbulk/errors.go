package pgbulk

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	_, err := loader.Load(ctx, dataset, cfg)
//	if errors.Is(err, pgbulk.ErrLoadIncomplete) {
//	    // some partitions never reported success; target was left untouched
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidDelimiter indicates the field delimiter is not exactly one character.
	// It is always reported together with ErrInvalidConfig.
	ErrInvalidDelimiter = errors.New("delimiter must be exactly one character")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrPartitionFailed indicates a partition task failed after exhausting its attempts.
	ErrPartitionFailed = errors.New("partition upload failed")

	// ErrLoadIncomplete indicates the success counter did not reach the partition count.
	ErrLoadIncomplete = errors.New("load incomplete")

	// ErrPromotionFailed indicates the staging table could not replace the target table.
	ErrPromotionFailed = errors.New("promotion failed")

	// ErrTypeMismatch indicates a value's runtime shape disagrees with its declared column type.
	ErrTypeMismatch = errors.New("value does not match column type")

	// ErrRowWidth indicates a row has a different number of values than the schema has columns.
	ErrRowWidth = errors.New("row width does not match schema")

	// ErrSourceFailed indicates the dataset could not be opened or read.
	ErrSourceFailed = errors.New("dataset source failed")

	// ErrApprovalDenied indicates the user declined a destructive operation.
	ErrApprovalDenied = errors.New("approval denied")
)

// usagePatterns are substrings cobra and pflag put in command-line misuse errors.
var usagePatterns = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"required flag",
	"invalid argument",
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrPromotionFailed):
		return ExitPromotionFailed
	case errors.Is(err, ErrLoadIncomplete), errors.Is(err, ErrPartitionFailed):
		return ExitLoadIncomplete
	case errors.Is(err, ErrSourceFailed):
		return ExitSourceError
	case errors.Is(err, ErrApprovalDenied):
		return ExitApprovalDenied
	}

	errStr := err.Error()
	for _, p := range usagePatterns {
		if strings.Contains(errStr, p) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
