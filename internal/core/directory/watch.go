package directory

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Watcher reloads a catalog file whenever it changes on disk.
type Watcher struct {
	path     string
	onChange func(*Catalog)
	logger   *logging.Logger

	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching path. onChange receives every successfully parsed
// revision; a revision that fails to parse is logged and skipped so the
// previous tables stay in force.
func Watch(path string, onChange func(*Catalog), logger *logging.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create catalog watcher: %w", err)
	}

	// Watch the directory: editors and config management replace the file
	// rather than writing it in place.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch catalog directory: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(absPath),
		onChange: onChange,
		logger:   logger,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("Catalog watcher error", zap.Error(err))
			}

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	catalog, err := LoadCatalog(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("Catalog reload skipped",
				zap.String("path", w.path),
				zap.Error(err))
		}
		return
	}

	if w.logger != nil {
		w.logger.Info("Catalog reloaded",
			zap.String("path", w.path),
			zap.Int("tokens", len(catalog.Tokens)),
			zap.Int("limits", len(catalog.Limits)))
	}
	if w.onChange != nil {
		w.onChange(catalog)
	}
}
