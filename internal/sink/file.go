package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"serverstats/internal/config"
	"serverstats/internal/logger"
	"serverstats/internal/stats"
)

// FileSink appends snapshots to a rotated file and optionally echoes them
// to stdout.
type FileSink struct {
	meta    Meta
	writer  io.WriteCloser
	console io.Writer
	pretty  bool
	format  string

	mu     sync.Mutex
	closed bool
}

// NewFileSink opens the file described by cfg. Format is "json" (default)
// for one envelope per line or "legacy" for one key=value line per metric.
func NewFileSink(cfg config.FileConfig, meta Meta) (*FileSink, error) {
	format := cfg.Format
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "legacy" {
		return nil, fmt.Errorf("unsupported file format %q: must be \"json\" or \"legacy\"", format)
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file sink requires a FilePath")
	}

	if dir := filepath.Dir(cfg.FilePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sink directory: %w", err)
		}
	}

	s := &FileSink{
		meta: meta,
		writer: &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		},
		pretty: cfg.Pretty,
		format: format,
	}
	if cfg.Console {
		s.console = os.Stdout
	}

	log := logger.WithComponent("file-sink")
	log.Info().
		Str("file_path", cfg.FilePath).
		Str("format", format).
		Bool("console", cfg.Console).
		Msg("File sink initialized")
	return s, nil
}

// Publish writes snap. Legacy format writes nothing for an empty snapshot.
func (s *FileSink) Publish(_ context.Context, snap stats.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.format == "legacy" {
		for _, line := range LegacyLines(s.meta.Hostname, snap) {
			if err := s.writeLine([]byte(line)); err != nil {
				return err
			}
		}
		return nil
	}

	env := NewEnvelope(s.meta, snap)
	var data []byte
	var err error
	if s.pretty {
		data, err = json.MarshalIndent(env, "", "  ")
	} else {
		data, err = json.Marshal(env)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.writeLine(data)
}

func (s *FileSink) writeLine(line []byte) error {
	line = append(line, '\n')
	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if s.console != nil {
		_, _ = s.console.Write(line)
	}
	return nil
}

// SetConsole turns stdout echo on or off.
func (s *FileSink) SetConsole(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.console = os.Stdout
	} else {
		s.console = nil
	}
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
