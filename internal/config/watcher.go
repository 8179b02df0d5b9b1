package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch re-loads configuration whenever the settings file changes and hands
// the new Config to onChange. Editors often replace files on save, so both
// write and create events trigger a reload, debounced to one per 500ms.
// Watch blocks until ctx is cancelled; callers run it in a goroutine.
func Watch(ctx context.Context, dataDir string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: replace-on-save creates a new
	// inode the file-level watch would lose.
	if err := watcher.Add(dataDir); err != nil {
		return err
	}

	settingsPath := SettingsPath(dataDir)
	var lastReload time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != settingsPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastReload) < 500*time.Millisecond {
				continue
			}
			lastReload = time.Now()

			cfg, err := Load(dataDir)
			if err != nil {
				log.Warn().Err(err).Msg("Settings reload failed, keeping previous config")
				continue
			}
			log.Info().Str("path", settingsPath).Msg("Settings reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Settings watcher error")
		}
	}
}
