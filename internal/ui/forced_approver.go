package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vvka-141/pgbulk/internal/tui"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// ForcedApprover implements the Approver interface for forced (non-interactive)
// approval. It lists the tables, counts down and approves, used when the
// --force flag is provided.
type ForcedApprover struct {
	verbose bool
	output  io.Writer
	sleepFn func(time.Duration)
}

// NewForcedApprover creates a new ForcedApprover writing to stderr.
func NewForcedApprover(verbose bool) pgbulk.Approver {
	return &ForcedApprover{verbose: verbose, output: os.Stderr, sleepFn: time.Sleep}
}

// RequestApproval displays a countdown and approves once it ends.
func (a *ForcedApprover) RequestApproval(ctx context.Context, target string, tables []pgbulk.TableName) (bool, error) {
	fmt.Fprintln(a.output)
	fmt.Fprintln(a.output, tui.ErrorStyle.Render(fmt.Sprintf("DANGER: dropping %d staging tables of %s", len(tables), target)))
	if a.verbose {
		for _, t := range tables {
			fmt.Fprintf(a.output, "  %s\n", t)
		}
	}

	countdownSeconds := int(pgbulk.DefaultForceApprovalCountdown.Seconds())
	for i := countdownSeconds; i > 0; i-- {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.output)
			return false, ctx.Err()
		default:
			fmt.Fprintf(a.output, "\rDropping in: %d seconds... (Press Ctrl+C to cancel)", i)
			a.sleepFn(time.Second)
		}
	}

	fmt.Fprintf(a.output, "\r%s Proceeding with cleanup...                              \n", tui.SymbolCheck)
	return true, nil
}

var _ pgbulk.Approver = (*ForcedApprover)(nil)
