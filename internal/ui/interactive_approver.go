package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vvka-141/pgbulk/internal/tui"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// InteractiveApprover implements the Approver interface for console-based
// interactive confirmation. It prompts the user to type the target table
// name before its staging tables are dropped.
type InteractiveApprover struct {
	verbose bool
	input   io.Reader
	output  io.Writer
}

// NewInteractiveApprover creates a new InteractiveApprover on stdin and stderr.
func NewInteractiveApprover(verbose bool) pgbulk.Approver {
	return &InteractiveApprover{verbose: verbose, input: os.Stdin, output: os.Stderr}
}

// RequestApproval lists the tables and asks the user to type target to confirm.
func (a *InteractiveApprover) RequestApproval(ctx context.Context, target string, tables []pgbulk.TableName) (bool, error) {
	fmt.Fprintf(a.output, "\n%s\n", tui.WarningStyle.Render(fmt.Sprintf("WARNING: You are about to DROP %d staging tables of '%s':", len(tables), target)))
	for _, t := range tables {
		fmt.Fprintf(a.output, "  %s\n", t)
	}
	fmt.Fprintln(a.output, "A load into this table that is still running will fail.")
	fmt.Fprintf(a.output, "\nTo confirm, type the table name '%s' and press Enter: ", target)

	// Read user input with context cancellation support
	inputChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(a.input)
		input, err := reader.ReadString('\n')
		if err != nil {
			errChan <- err
			return
		}
		inputChan <- strings.TrimSpace(input)
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errChan:
		return false, fmt.Errorf("failed to read input: %w", err)
	case input := <-inputChan:
		if input == target {
			fmt.Fprintf(a.output, "%s Confirmed. Proceeding with cleanup...\n", tui.SymbolCheck)
			return true, nil
		}
		fmt.Fprintf(a.output, "%s Input '%s' does not match table name '%s'. Operation cancelled.\n", tui.SymbolCross, input, target)
		return false, nil
	}
}

var _ pgbulk.Approver = (*InteractiveApprover)(nil)
