package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"serverstats/internal/logger"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// FileWatcher calls onChange after path is written or recreated. The parent
// directory is watched so that atomic rename-over saves are seen.
type FileWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
	exited  chan struct{}
}

// NewFileWatcher creates a watcher for path. It does nothing until Start.
func NewFileWatcher(path string, debounce time.Duration, onChange func()) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce < 0 {
		debounce = 0
	}
	return &FileWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		watcher:  w,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}, nil
}

// Start begins watching. Calling Start twice is a no-op.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.running {
		return nil
	}
	if err := fw.watcher.Add(filepath.Dir(fw.path)); err != nil {
		return err
	}
	fw.running = true

	log := logger.WithComponent("watcher")
	log.Info().Str("path", fw.path).Msg("Watching file")
	go fw.loop()
	return nil
}

// Stop ends the watch loop and waits for it to exit. A pending debounced
// callback is discarded.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	<-fw.exited
	return err
}

// IsRunning reports whether the watch loop is active.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) loop() {
	defer close(fw.exited)
	log := logger.WithComponent("watcher")
	name := filepath.Base(fw.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-fw.done:
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			log.Debug().Str("path", fw.path).Str("event", ev.Op.String()).Msg("File event")
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(fw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Info().Str("path", fw.path).Msg("File changed, reloading")
			if fw.onChange != nil {
				fw.onChange()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("path", fw.path).Msg("File watcher error")
		}
	}
}

// NewLoggingWatcher reloads the logging configuration on change and hands it
// to apply. Files that fail to parse are logged and skipped.
func NewLoggingWatcher(path string, apply func(*logger.Config)) (*FileWatcher, error) {
	return NewFileWatcher(path, DefaultDebounce, func() {
		lc, err := LoadLogging(path)
		if err != nil {
			log := logger.WithComponent("watcher")
			log.Error().Err(err).Str("path", path).Msg("Failed to reload logging configuration")
			return
		}
		if apply != nil {
			apply(lc)
		}
	})
}
