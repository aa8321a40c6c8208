package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher hot-reloads a policy directory on file changes. The
// running conductor sees updated thresholds on the next tick without a
// restart.
type PolicyWatcher struct {
	dir     string
	set     *PolicySet
	watcher *fsnotify.Watcher
	// onReload, if set, is called after each successful reload.
	onReload func(*PolicySet)

	stopOnce sync.Once
	done     chan struct{}
}

// WatchPolicies loads the directory into set and starts watching it
// for changes. Callers must Close the watcher when done.
func WatchPolicies(dir string, set *PolicySet, onReload func(*PolicySet)) (*PolicyWatcher, error) {
	if set == nil {
		return nil, fmt.Errorf("policy watcher requires a policy set")
	}

	loaded, err := LoadPolicies(dir)
	if err != nil {
		return nil, err
	}
	adoptPolicies(set, loaded)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating policy watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &PolicyWatcher{
		dir:      dir,
		set:      set,
		watcher:  fw,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// loop processes filesystem events until Close.
func (w *PolicyWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the current set stays live.
		case <-w.done:
			return
		}
	}
}

// reload re-reads the whole directory. Partial edits that fail to
// parse leave the previous set in place.
func (w *PolicyWatcher) reload() {
	loaded, err := LoadPolicies(w.dir)
	if err != nil {
		return
	}
	adoptPolicies(w.set, loaded)
	if w.onReload != nil {
		w.onReload(w.set)
	}
}

// Close stops the watcher.
func (w *PolicyWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// adoptPolicies copies the loaded set's policies into the live set.
func adoptPolicies(live, loaded *PolicySet) {
	fresh := make(map[string]*ChiefPolicy, len(loaded.policies))
	loaded.mu.RLock()
	for d, p := range loaded.policies {
		fresh[d] = p
	}
	loaded.mu.RUnlock()
	live.ReplaceAll(fresh)
}
