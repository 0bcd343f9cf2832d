package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"ChromaFM/core/pipeline"
	"ChromaFM/logger"
)

// watchPollInterval is how often pending filesystem changes are checked
// against the rescan rate limit.
const watchPollInterval = 5 * time.Second

// Watch monitors dir recursively and rescans it when audio files change.
// Bursts of events (a large copy, a tag editor rewriting an album) are
// coalesced: rescans run at most once per minInterval. Blocks until the
// context is cancelled.
func (s *Scanner) Watch(ctx context.Context, dir string, minInterval time.Duration, opts pipeline.Options) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}
	logger.Info("watching library directory", logger.String("directory", dir))

	limiter := rate.NewLimiter(rate.Every(minInterval), 1)
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("filesystem watcher closed unexpectedly")
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						logger.Warn("failed to watch new directory",
							logger.String("path", event.Name),
							logger.ErrorField(err))
					}
				}
			}
			if s.relevant(event) {
				pending = true
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("filesystem watcher closed unexpectedly")
			}
			logger.Warn("filesystem watcher error", logger.ErrorField(err))

		case <-ticker.C:
			if !pending || !limiter.Allow() {
				continue
			}
			pending = false
			if _, err := s.Scan(ctx, dir, opts); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("rescan after filesystem change failed", logger.ErrorField(err))
			}
		}
	}
}

// relevant reports whether an event concerns an audio file or a directory
// change that could contain audio files.
func (s *Scanner) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if _, ok := s.exts[ext]; ok {
		return true
	}
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir()
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("failed to watch directory tree %s: %w", root, err)
	}
	return nil
}
