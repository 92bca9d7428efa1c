package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/promethean-bridge/internal/logger"
)

// Watcher reloads a config file whenever it changes on disk
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Watch starts watching path. The parent directory is watched rather than
// the file itself so editors that replace the file on save keep working.
// onChange runs on the watcher goroutine with the freshly loaded config.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:     absPath,
		watcher:  watcher,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn("Ignoring invalid config change in %s: %v", w.path, err)
				continue
			}
			logger.Info("Config reloaded from %s", w.path)
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error: %v", err)
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
