package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/deferred"
)

// Watcher records which resources under a directory change on disk.
// Changes are collected on a background goroutine and drained with
// Changed, typically between frames on the render goroutine.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher

	mu      sync.Mutex
	changed map[string]struct{}
	notify  chan struct{}

	done chan struct{}
	once sync.Once
}

// NewWatcher watches root and every directory below it.
func NewWatcher(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("source: watch %s: %w", root, err)
	}
	w := &Watcher{
		root:    root,
		fsw:     fsw,
		changed: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("source: watch %s: %w", root, err)
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			deferred.Logger().Warn("source: watch error", "root", w.root, "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		// New directories are not watched automatically.
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				deferred.Logger().Warn("source: watch directory", "dir", ev.Name, "err", err)
			}
			return
		}
	}
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	name := filepath.ToSlash(rel)
	deferred.Logger().Debug("source: changed", "name", name, "op", ev.Op.String())

	w.mu.Lock()
	w.changed[name] = struct{}{}
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Changed returns and forgets the names changed since the last call, in
// lexical order.
func (w *Watcher) Changed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.changed) == 0 {
		return nil
	}
	names := make([]string, 0, len(w.changed))
	for n := range w.changed {
		names = append(names, n)
	}
	clear(w.changed)
	sort.Strings(names)
	return names
}

// Notify returns a channel that receives a value after changes are
// recorded. Several changes may share one notification.
func (w *Watcher) Notify() <-chan struct{} {
	return w.notify
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fsw.Close()
		<-w.done
	})
	return err
}
