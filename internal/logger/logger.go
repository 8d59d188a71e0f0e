// Package logger provides the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logger configuration, loaded from Logging.json.
type Config struct {
	Level      string `json:"Level" yaml:"Level"`
	FilePath   string `json:"FilePath" yaml:"FilePath"`
	Format     string `json:"Format" yaml:"Format"` // "json" (default) or "text"
	MaxSizeMB  int    `json:"MaxSizeMB" yaml:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups" yaml:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays" yaml:"MaxAgeDays"`
	Compress   bool   `json:"Compress" yaml:"Compress"`
	Console    bool   `json:"Console" yaml:"Console"`
}

// DefaultConfig returns the logging defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FilePath:   "log/ServerStats/serverstats.log",
		Format:     "json",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// consoleBuffer is the number of pending console lines kept before dropping.
const consoleBuffer = 1000

var (
	mu          sync.Mutex
	global      = zerolog.Nop()
	fileOut     io.Closer
	consoleOut  *asyncWriter
	serviceMode bool
)

// SetServiceMode suppresses console output when the process has no terminal.
func SetServiceMode(on bool) {
	mu.Lock()
	serviceMode = on
	mu.Unlock()
}

// Init (re)builds the global logger. It is safe to call again on hot reload;
// writers from the previous call are closed first.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	closeWriters()

	var writers []io.Writer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		fileOut = lj
		if strings.EqualFold(cfg.Format, "text") {
			writers = append(writers, NewFixedFormatWriter(lj))
		} else {
			writers = append(writers, lj)
		}
	}

	if cfg.Console && !serviceMode {
		// Console goes through an async writer so a stalled terminal never
		// holds up file output or the sampling loop.
		consoleOut = newAsyncWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, consoleBuffer)
		writers = append(writers, consoleOut)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = os.Stdout
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	global = zerolog.New(out).With().Timestamp().Caller().Logger()
	return nil
}

// Close flushes the console writer and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeWriters()
	global = zerolog.Nop()
}

func closeWriters() {
	if consoleOut != nil {
		consoleOut.Close()
		consoleOut = nil
	}
	if fileOut != nil {
		_ = fileOut.Close()
		fileOut = nil
	}
}

func current() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := global
	return &l
}

// Logger returns a copy of the global logger.
func Logger() *zerolog.Logger { return current() }

func Debug() *zerolog.Event { return current().Debug() }
func Info() *zerolog.Event  { return current().Info() }
func Warn() *zerolog.Event  { return current().Warn() }
func Error() *zerolog.Event { return current().Error() }
func Fatal() *zerolog.Event { return current().Fatal() }

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return current().With().Str("component", component).Logger()
}

// asyncWriter hands writes to a background goroutine and never blocks the
// caller. Lines are dropped when the buffer is full.
type asyncWriter struct {
	ch   chan []byte
	w    io.Writer
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newAsyncWriter(w io.Writer, size int) *asyncWriter {
	aw := &asyncWriter{
		ch:   make(chan []byte, size),
		w:    w,
		done: make(chan struct{}),
	}
	go aw.drain()
	return aw
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	if aw.closed {
		return len(p), nil
	}
	buf := append([]byte(nil), p...)
	select {
	case aw.ch <- buf:
	default:
	}
	return len(p), nil
}

func (aw *asyncWriter) drain() {
	defer close(aw.done)
	for p := range aw.ch {
		_, _ = aw.w.Write(p)
	}
}

// Close stops accepting writes and waits until queued lines are written.
func (aw *asyncWriter) Close() {
	aw.once.Do(func() {
		aw.mu.Lock()
		aw.closed = true
		close(aw.ch)
		aw.mu.Unlock()
		<-aw.done
	})
}
