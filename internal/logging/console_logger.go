package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// ConsoleLogger writes log lines to a writer, stderr by default.
// Safe for concurrent use; scoped loggers created with WithPrefix share the
// parent's lock so lines never interleave.
type ConsoleLogger struct {
	out     io.Writer
	verbose bool
	prefix  string
	mu      *sync.Mutex
}

// NewConsoleLogger creates a ConsoleLogger writing to stderr.
// Verbose() calls are no-ops unless verbose is true.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	return NewWriterLogger(os.Stderr, verbose)
}

// NewWriterLogger creates a ConsoleLogger writing to w.
func NewWriterLogger(w io.Writer, verbose bool) *ConsoleLogger {
	return &ConsoleLogger{out: w, verbose: verbose, mu: &sync.Mutex{}}
}

// WithPrefix returns a logger that tags every line with "[scope] ".
// Prefixes nest: WithPrefix("a").WithPrefix("b") tags lines with "[a] [b] ".
func (l *ConsoleLogger) WithPrefix(scope string) *ConsoleLogger {
	clone := *l
	clone.prefix = l.prefix + "[" + scope + "] "
	return &clone
}

// Verbose logs detailed diagnostic information if verbose mode is enabled.
func (l *ConsoleLogger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.write("[VERBOSE] ", format, args)
}

// Info logs informational messages about normal operations.
func (l *ConsoleLogger) Info(format string, args ...interface{}) {
	l.write("", format, args)
}

// Error logs error messages.
func (l *ConsoleLogger) Error(format string, args ...interface{}) {
	l.write("[ERROR] ", format, args)
}

func (l *ConsoleLogger) write(level, format string, args []interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, level+l.prefix+msg+"\n")
}

// Scoped returns logger tagged with scope when it supports WithPrefix,
// and logger itself otherwise.
func Scoped(logger pgbulk.Logger, scope string) pgbulk.Logger {
	if cl, ok := logger.(*ConsoleLogger); ok {
		return cl.WithPrefix(scope)
	}
	return logger
}
