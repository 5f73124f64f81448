package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchHotKeys starts an fsnotify watcher on the config's source file and
// calls Reload whenever it changes, refreshing only the hot keys (§9).
// The returned stop function closes the watcher; it is safe to call once.
func (c *Config) WatchHotKeys() (stop func(), err error) {
	if c.path == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(c.path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := c.Reload(); err != nil {
						slog.Warn("config hot-reload failed", "error", err)
					}
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
