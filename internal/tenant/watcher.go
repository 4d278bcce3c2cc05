package tenant

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/docsearch/internal/logfields"
	"git.home.luguber.info/inful/docsearch/internal/urlpath"
)

// watchDebounce coalesces bursts of file events into one reindex.
const watchDebounce = 2 * time.Second

// reindexWatcher triggers a reindex when markdown under docs_root
// changes. Used by filesystem tenants, which have no sync source.
type reindexWatcher struct {
	w       *fsnotify.Watcher
	root    string
	trigger func()
	logger  *slog.Logger
	done    chan struct{}
}

func newReindexWatcher(root string, trigger func(), logger *slog.Logger) (*reindexWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	rw := &reindexWatcher{w: w, root: root, trigger: trigger, logger: logger, done: make(chan struct{})}
	if err := rw.addRecursive(root); err != nil {
		w.Close()
		return nil, err
	}

	go rw.loop()
	return rw, nil
}

// addRecursive watches dir and every non-reserved subdirectory.
func (rw *reindexWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, rerr := filepath.Rel(rw.root, p); rerr == nil && rel != "." && urlpath.IsReservedRelPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return rw.w.Add(p)
	})
}

func (rw *reindexWatcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-rw.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-rw.w.Events:
			if !ok {
				return
			}
			if !rw.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				_ = rw.addRecursive(event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			rw.logger.Info("docs_root changed, triggering reindex")
			rw.trigger()
		case err, ok := <-rw.w.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("filesystem watch error", logfields.Error(err))
		}
	}
}

// relevant filters out events under reserved subtrees and non-markdown
// files.
func (rw *reindexWatcher) relevant(event fsnotify.Event) bool {
	rel, err := filepath.Rel(rw.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if urlpath.IsReservedRelPath(rel) {
		return false
	}
	// Directory events matter for watch registration; files only when
	// they look like documentation.
	if strings.HasSuffix(rel, urlpath.MarkdownExt) || strings.HasSuffix(rel, urlpath.MetaExt) {
		return true
	}
	return event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Remove)
}

func (rw *reindexWatcher) Close() {
	close(rw.done)
	_ = rw.w.Close()
}
