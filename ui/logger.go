package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	charmlog "github.com/charmbracelet/log"
)

const LogFileName = "midi-capture.log"

// NewLogger builds the root logger. Components derive theirs with
// WithPrefix and find it through the context.
func NewLogger(w io.Writer, level string) *charmlog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		ReportCaller:    lvl == charmlog.DebugLevel,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	styles := charmlog.DefaultStyles()
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styles.Values["err"] = lipgloss.NewStyle().Bold(true)
	styles.Keys["file"] = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styles.Keys["port"] = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	logger.SetStyles(styles)
	return logger
}

// OpenLogFile opens (appending) the log kept next to the recordings, so
// revealing the recordings also shows what happened.
func OpenLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

const LogBufferLines = 1024

// AsyncWriter hands each Write to a goroutine so the caller never waits on
// the underlying writer. Lines that do not fit in the buffer are dropped and
// counted. After Close, writes go straight through.
type AsyncWriter struct {
	w       io.Writer
	lines   chan []byte
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewAsyncWriter(w io.Writer, size int) *AsyncWriter {
	a := &AsyncWriter{
		w:     w,
		lines: make(chan []byte, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncWriter) Write(p []byte) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return a.w.Write(p)
	}
	// the logger reuses its buffer
	line := append([]byte(nil), p...)
	select {
	case a.lines <- line:
	default:
		a.dropped.Add(1)
	}
	return len(p), nil
}

// Dropped is the number of lines lost to a full buffer so far.
func (a *AsyncWriter) Dropped() int64 {
	return a.dropped.Load()
}

// Close writes out what is buffered and reports dropped lines, if any.
func (a *AsyncWriter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.lines)
	a.mu.Unlock()
	<-a.done
	if n := a.dropped.Load(); n > 0 {
		_, err := fmt.Fprintf(a.w, "%d log lines dropped\n", n)
		return err
	}
	return nil
}

func (a *AsyncWriter) run() {
	defer close(a.done)
	for line := range a.lines {
		a.w.Write(line)
	}
}
