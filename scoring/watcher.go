package scoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WaitAndLoad loads the artifact at path, waiting for the file to appear if
// the server came up before the bundle was deployed. The service stays in
// Loading while waiting; only an actual load error moves it to Failed.
func (s *Service) WaitAndLoad(ctx context.Context, path string) error {
	s.setState(StateLoading)

	if _, err := os.Stat(path); err == nil {
		return s.Load(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		s.setState(StateFailed)
		return fmt.Errorf("stat artifact: %w", err)
	}

	s.logger.Info("artifact not present yet, waiting", zap.String("path", path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("start artifact watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// The file may have landed between the stat and the watch.
	if _, err := os.Stat(path); err == nil {
		return s.Load(path)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				s.setState(StateFailed)
				return errors.New("artifact watcher closed")
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Writers rename into place; a short settle covers stragglers
			// that write directly.
			time.Sleep(100 * time.Millisecond)
			return s.Load(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				s.setState(StateFailed)
				return errors.New("artifact watcher closed")
			}
			s.logger.Warn("artifact watcher error", zap.Error(err))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
