package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-reads the config file when it changes on disk, so VAD tuning
// (threshold, silence duration) can be adjusted without restarting.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	logger   zerolog.Logger
	onChange func(*Config)
	done     chan struct{}
}

// Watch starts watching the given config file. onChange is invoked with the
// freshly loaded config after each write.
func Watch(path string, logger zerolog.Logger, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory; editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		logger:   logger.With().Str("component", "config-watch").Logger(),
		onChange: onChange,
		done:     make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				cfg, err := LoadFile(w.path)
				if err != nil {
					w.logger.Warn().Err(err).Msg("Config reload failed")
					continue
				}
				w.logger.Info().Float64("threshold", cfg.Audio.SpeechThreshold).
					Dur("silence", cfg.Audio.SilenceDuration).
					Msg("Config reloaded")
				if w.onChange != nil {
					w.onChange(cfg)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
