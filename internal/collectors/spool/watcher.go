package spool

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// signalBuffer is the size of the signal channel.
const signalBuffer = 64

// Watcher reports which spool sources received new files. Each signal is a
// source ID; consumers coalesce bursts.
type Watcher struct {
	watcher *fsnotify.Watcher
	dirs    map[string]string // directory -> source ID
	signals chan string

	dropped  atomic.Int64
	stopOnce sync.Once
}

// NewWatcher watches the directories of the given spool sources. Sources
// with other collectors are ignored.
func NewWatcher(sources []domain.Source) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		dirs:    make(map[string]string),
		signals: make(chan string, signalBuffer),
	}
	for i := range sources {
		src := &sources[i]
		if src.Collector.Kind != domain.CollectorSpool || !src.Enabled {
			continue
		}
		dir := filepath.Clean(src.Collector.Path)
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
		w.dirs[dir] = src.ID
	}
	return w, nil
}

// Signals returns the channel of source IDs. It is closed when the
// watcher stops.
func (w *Watcher) Signals() <-chan string {
	return w.signals
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	return len(w.dirs)
}

// Dropped returns the number of signals dropped because the channel was full.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Start processes file events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop releases the underlying watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() { err = w.watcher.Close() })
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.signals)
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("spool watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	if !IsSpoolFile(ev.Name) {
		return
	}
	id, ok := w.dirs[filepath.Dir(ev.Name)]
	if !ok {
		return
	}

	select {
	case w.signals <- id:
		logger.Debug("Spool change for %s: %s", id, filepath.Base(ev.Name))
	default:
		w.dropped.Add(1)
	}
}
