package registry

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reload waits this long after the last file event so editors that write
// in several steps trigger a single reload.
const reloadDebounce = 100 * time.Millisecond

// WatchDeployments re-reads the deployments file whenever it changes,
// until ctx is done. A removed file keeps the last known contract set.
func (r *Registry) WatchDeployments(ctx context.Context) {
	if r.deploymentsPath == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Error("Could not initialize file watcher")
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Error("Could not close file watcher")
		}
	}()
	if err := watcher.Add(r.deploymentsPath); err != nil {
		log.WithError(err).Errorf("Could not add file %s to file watcher", r.deploymentsPath)
		return
	}
	var reload <-chan time.Time
	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Remove == fsnotify.Remove {
				log.Warn("Deployments file was removed, keeping last known contracts")
				continue
			}
			reload = time.After(reloadDebounce)
		case <-reload:
			reload = nil
			if err := r.ReloadDeployments(); err != nil {
				log.WithError(err).Errorf("Could not reload deployments file %s", r.deploymentsPath)
			}
		case err := <-watcher.Errors:
			log.WithError(err).Errorf("Could not watch for file changes for: %s", r.deploymentsPath)
		case <-ctx.Done():
			return
		}
	}
}
