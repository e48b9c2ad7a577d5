package tui

import (
	"os"

	"golang.org/x/term"
)

// Mode represents how load progress is reported.
type Mode int

const (
	// ModePlain writes log lines only. Used for CI pipelines, redirected output and scripts.
	ModePlain Mode = iota
	// ModeProgress renders a live progress bar.
	ModeProgress
)

// DetectMode determines whether pgbulk should render a progress bar.
//
// Returns ModePlain if:
//   - PGBULK_NO_PROGRESS=1 is set
//   - CI is set (common CI/CD convention)
//   - NO_COLOR is set
//   - stderr is not a terminal
func DetectMode() Mode {
	if os.Getenv("PGBULK_NO_PROGRESS") == "1" {
		return ModePlain
	}
	if os.Getenv("CI") != "" {
		return ModePlain
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}

	// Progress is drawn on stderr so stdout stays clean for the summary.
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return ModePlain
	}
	return ModeProgress
}

// IsInteractive reports whether DetectMode selects the progress bar.
func IsInteractive() bool {
	return DetectMode() == ModeProgress
}
