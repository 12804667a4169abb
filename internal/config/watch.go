package config

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the newly loaded Config each
// time the source set changes on disk. Only poll.sources is hot-reloadable;
// edits to the interval, log path or HTTP settings are logged and ignored
// until restart. Watch runs until ctx is cancelled.
//
// If a reload fails (invalid YAML, failed validation), the error is logged
// and the previous config remains active — Watch does not call onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	prev, err := Load(path)
	if err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only reload on write or create events. Editors often write via
			// rename (atomic save), so also catch fsnotify.Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed — keeping previous config",
					"path", path, "err", err)
				continue
			}

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			if reflect.DeepEqual(cfg.Poll.Sources, prev.Poll.Sources) {
				if !reflect.DeepEqual(cfg, prev) {
					slog.Info("config: change does not affect sources — restart to apply",
						"path", path)
					prev = cfg
				}
				continue
			}

			slog.Info("config: sources reloaded",
				"path", path, "sources", len(cfg.Poll.Sources))
			prev = cfg
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
