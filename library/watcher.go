package library

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"decayfm/logger"
)

const (
	// settleWindow is how long a file must go without write events before
	// we treat the upload as finished and register it.
	settleWindow = 500 * time.Millisecond
	// settleTick is how often pending files are re-checked.
	settleTick = 200 * time.Millisecond
)

// Watch blocks until ctx is cancelled, registering WAV files that appear in
// the audio directory while the server runs. A file is only registered once
// it has stopped receiving write events for settleWindow, so half-copied
// uploads are not probed. Removals are logged; decay records outlive their
// audio on purpose.
func (s *Scanner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create library watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.audioDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.audioDir, err)
	}
	logger.Info("watching library", logger.String("dir", s.audioDir))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".wav") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[name] = time.Now()
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, name)
				logger.Warn("audio file left the library",
					logger.String("filename", name))
			}

		case <-ticker.C:
			now := time.Now()
			for name, last := range pending {
				if now.Sub(last) < settleWindow {
					continue
				}
				delete(pending, name)
				created, err := s.Register(ctx, name)
				if err != nil {
					logger.Warn("failed to register dropped-in file",
						logger.String("filename", name), logger.ErrorField(err))
					continue
				}
				if created {
					logger.Info("new track joined the library",
						logger.String("filename", name))
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("library watcher error", logger.ErrorField(err))
		}
	}
}
