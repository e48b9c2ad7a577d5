package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

const barWidth = 40

type loadStartedMsg struct {
	table      string
	partitions int
}

type partitionStartedMsg struct {
	index, attempt int
}

type partitionFinishedMsg pgbulk.PartitionReport

type loadFinishedMsg struct {
	result *pgbulk.LoadResult
	err    error
}

// progressModel is the bubbletea model behind Progress.
type progressModel struct {
	table      string
	partitions int
	started    time.Time

	running   map[int]int // partition index -> attempt
	succeeded int
	retried   int
	rows      int64
	bytes     int64
	lastErr   error

	done   bool
	result *pgbulk.LoadResult
	err    error

	bar     progress.Model
	spinner spinner.Model
	now     func() time.Time
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return progressModel{
		running: make(map[int]int),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		spinner: s,
		now:     time.Now,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadStartedMsg:
		m.table = msg.table
		m.partitions = msg.partitions
		m.started = m.now()
	case partitionStartedMsg:
		m.running[msg.index] = msg.attempt
	case partitionFinishedMsg:
		delete(m.running, msg.Index)
		if msg.Err != nil {
			m.retried++
			m.lastErr = msg.Err
			break
		}
		m.succeeded++
		m.rows += msg.Rows
		m.bytes += msg.Bytes
	case loadFinishedMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) percent() float64 {
	if m.partitions == 0 {
		if m.done {
			return 1
		}
		return 0
	}
	return float64(m.succeeded) / float64(m.partitions)
}

func (m progressModel) View() string {
	var b strings.Builder

	if m.done {
		if m.err != nil {
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("%s load into %s failed: %v", SymbolCross, m.table, m.err)))
		} else {
			rows := m.rows
			if m.result != nil {
				rows = m.result.Rows
			}
			b.WriteString(SuccessStyle.Render(fmt.Sprintf("%s loaded %d rows into %s", SymbolCheck, rows, m.table)))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(TitleStyle.Render("Loading " + m.table))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.percent()))
	b.WriteString("\n")

	elapsed := time.Duration(0)
	if !m.started.IsZero() {
		elapsed = m.now().Sub(m.started).Round(time.Second)
	}
	b.WriteString(CounterStyle.Render(fmt.Sprintf("%d/%d partitions  %d running  %d rows  %s  %v",
		m.succeeded, m.partitions, len(m.running), m.rows, bytefmt.ByteSize(uint64(m.bytes)), elapsed)))
	b.WriteString("\n")

	if m.retried > 0 {
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%s %d failed attempts, last: %v", SymbolRetry, m.retried, m.lastErr)))
		b.WriteString("\n")
	}
	return b.String()
}

// Progress renders a live progress bar for one load. It implements
// pgbulk.LoadObserver; the bar starts on LoadStarted and the final line is
// drawn before LoadFinished returns.
//
// Progress is also a pgbulk.Logger: while the bar is shown, log lines are
// printed above it instead of breaking the frame.
type Progress struct {
	out     io.Writer
	verbose bool

	mu   sync.Mutex
	prog *tea.Program
	done chan struct{}
}

// NewProgress returns a progress display writing to out.
func NewProgress(out io.Writer, verbose bool) *Progress {
	return &Progress{out: out, verbose: verbose}
}

func (p *Progress) LoadStarted(table string, partitions int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prog != nil {
		return
	}

	p.prog = tea.NewProgram(newProgressModel(), tea.WithOutput(p.out), tea.WithInput(nil))
	p.done = make(chan struct{})
	go func(prog *tea.Program, done chan struct{}) {
		defer close(done)
		_, _ = prog.Run()
	}(p.prog, p.done)

	p.prog.Send(loadStartedMsg{table: table, partitions: partitions})
}

func (p *Progress) PartitionStarted(index, attempt int) {
	p.send(partitionStartedMsg{index: index, attempt: attempt})
}

func (p *Progress) PartitionFinished(report pgbulk.PartitionReport) {
	p.send(partitionFinishedMsg(report))
}

func (p *Progress) LoadFinished(result *pgbulk.LoadResult, err error) {
	p.mu.Lock()
	prog, done := p.prog, p.done
	p.prog = nil
	p.mu.Unlock()
	if prog == nil {
		return
	}

	prog.Send(loadFinishedMsg{result: result, err: err})
	<-done
}

func (p *Progress) Verbose(format string, args ...interface{}) {
	if p.verbose {
		p.println("[VERBOSE] " + fmt.Sprintf(format, args...))
	}
}

func (p *Progress) Info(format string, args ...interface{}) {
	p.println(fmt.Sprintf(format, args...))
}

func (p *Progress) Error(format string, args ...interface{}) {
	p.println(ErrorStyle.Render("[ERROR] " + fmt.Sprintf(format, args...)))
}

func (p *Progress) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prog != nil {
		p.prog.Println(line)
		return
	}
	fmt.Fprintln(p.out, line)
}

func (p *Progress) send(msg tea.Msg) {
	p.mu.Lock()
	prog := p.prog
	p.mu.Unlock()
	if prog != nil {
		prog.Send(msg)
	}
}

var (
	_ pgbulk.LoadObserver = (*Progress)(nil)
	_ pgbulk.Logger       = (*Progress)(nil)
)
