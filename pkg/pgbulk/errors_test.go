package pgbulk_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, pgbulk.ExitSuccess},
		{"unknown flag", errors.New("unknown flag --foo"), pgbulk.ExitUsageError},
		{"unknown shorthand flag", errors.New("unknown shorthand flag: 'x'"), pgbulk.ExitUsageError},
		{"accepts args", errors.New("accepts 1 arg(s), received 0"), pgbulk.ExitUsageError},
		{"required flag", errors.New("required flag \"table\" not set"), pgbulk.ExitUsageError},
		{"general error", errors.New("something went wrong"), pgbulk.ExitGeneralError},
		{"invalid config", fmt.Errorf("bad: %w", pgbulk.ErrInvalidConfig), pgbulk.ExitConfigError},
		{"bad delimiter", mustDelimiterErr(t), pgbulk.ExitConfigError},
		{"unsupported auth", pgbulk.ErrUnsupportedAuthMethod, pgbulk.ExitConfigError},
		{"connection failed", pgbulk.ErrConnectionFailed, pgbulk.ExitConnectionError},
		{"connection refused text", errors.New("dial tcp: connection refused"), pgbulk.ExitConnectionError},
		{"load incomplete", fmt.Errorf("3 of 4: %w", pgbulk.ErrLoadIncomplete), pgbulk.ExitLoadIncomplete},
		{"partition failed", fmt.Errorf("partition 2: %w", pgbulk.ErrPartitionFailed), pgbulk.ExitLoadIncomplete},
		{"promotion failed", pgbulk.ErrPromotionFailed, pgbulk.ExitPromotionFailed},
		{"source failed", pgbulk.ErrSourceFailed, pgbulk.ExitSourceError},
		{"approval denied", fmt.Errorf("cleanup: %w", pgbulk.ErrApprovalDenied), pgbulk.ExitApprovalDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pgbulk.ExitCodeForError(tt.err); got != tt.want {
				t.Errorf("ExitCodeForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func mustDelimiterErr(t *testing.T) error {
	t.Helper()
	_, err := pgbulk.ParseDelimiter(",,")
	if err == nil {
		t.Fatal("expected delimiter error")
	}
	return err
}
