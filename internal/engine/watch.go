package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watch retrains whenever the dataset file is written or replaced. Bursts of
// events are collapsed into one reload. It blocks until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create dataset watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(e.opts.DatasetPath)
	dir := filepath.Dir(target)
	// Editors often replace files by rename, so watch the directory.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	e.log.Infof("watching dataset path=%s", target)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			e.log.Debugf("dataset event op=%s", ev.Op)
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log.Warnf("dataset watcher error: %v", err)
		case <-timer.C:
			if _, err := e.Reload(ctx); err == nil {
				e.log.Infof("dataset changed, model reloaded")
			}
		}
	}
}
