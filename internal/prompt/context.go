package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultContextFile is read from the working directory.
const DefaultContextFile = "context.txt"

// ContextSource supplies the reference text injected into prompts.
// Until Watch is running every call reads the file; while watching, the
// content is cached and refreshed when the file changes.
type ContextSource struct {
	path     string
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.RWMutex
	content  string
	watching bool
}

// NewContextSource returns a source for path (DefaultContextFile when empty).
func NewContextSource(path string, logger *zap.Logger) *ContextSource {
	if path == "" {
		path = DefaultContextFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextSource{path: path, logger: logger, debounce: 200 * time.Millisecond}
}

// Path returns the watched file.
func (s *ContextSource) Path() string { return s.path }

// Content returns the current context. A missing or unreadable file yields "".
func (s *ContextSource) Content() string {
	s.mu.RLock()
	if s.watching {
		defer s.mu.RUnlock()
		return s.content
	}
	s.mu.RUnlock()
	return s.read()
}

// Reload re-reads the file into the cache and returns the new content.
func (s *ContextSource) Reload() string {
	content := s.read()
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
	return content
}

func (s *ContextSource) read() string {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("context file not found", zap.String("path", s.path))
		return ""
	}
	if err != nil {
		s.logger.Error("error loading context file", zap.String("path", s.path), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Watching reports whether Watch is active.
func (s *ContextSource) Watching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watching
}

// Watch caches the file and reloads it on change until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are handled, and a file created after startup is picked up.
func (s *ContextSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.Reload()
	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
	}()
	s.logger.Debug("watching context file", zap.String("path", s.path))

	target := filepath.Clean(s.path)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce rapid saves
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			content := s.Reload()
			s.logger.Info("context file reloaded",
				zap.String("path", s.path),
				zap.Int("bytes", len(content)),
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("context watcher error", zap.Error(err))
		}
	}
}
