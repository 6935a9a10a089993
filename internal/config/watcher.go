package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounceWindow absorbs the multiple events editors emit per save.
const debounceWindow = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and calls onChange with
// each successfully loaded config. Files that fail to load are logged and
// skipped; the previous config stays in effect. Watch blocks until the
// context is cancelled.
func Watch(ctx context.Context, path string, log logrus.FieldLogger, onChange func(*Config)) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which breaks a
	// direct file watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := Load(path)
			if err != nil {
				log.WithError(err).Warn("config reload failed, keeping previous config")
				continue
			}
			log.WithField("path", path).Info("config reloaded")
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}
