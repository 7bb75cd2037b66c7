// Package watch implements the workflow-directory hot-reload surface:
// a directory of YAML workflow definitions is watched for create/write/
// remove events, and each change re-parses the affected file and hands
// the result to a caller-supplied callback. This is a reload of
// *definitions*, never a scheduler of *runs*.
package watch

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/loomwrk/loom/internal/workflow"
)

// Watcher watches dir for .yaml/.yml workflow definition files.
type Watcher struct {
	logger   *zap.Logger
	dir      string
	onChange func(path string, def *workflow.Definition)
	onRemove func(path string)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// New builds a Watcher for dir. onChange is called (from the watcher's
// own goroutine) whenever a definition file is created or written and
// parses successfully; onRemove is called when one is deleted or
// renamed away. Either callback may be nil.
func New(logger *zap.Logger, dir string, onChange func(path string, def *workflow.Definition), onRemove func(path string)) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{logger: logger, dir: dir, onChange: onChange, onRemove: onRemove, done: make(chan struct{})}
}

// Start loads every existing definition file in dir, then begins
// watching for subsequent changes. It returns once the initial load and
// watcher registration complete; event handling continues in the
// background until Stop is called.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.loadExisting(); err != nil {
		w.logger.Warn("initial workflow directory scan failed", zap.Error(err))
	}

	go w.loop(fsw)

	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.logger.Info("workflow directory watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop terminates the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) loadExisting() error {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.yaml"))
	if err != nil {
		return err
	}
	ymlMatches, err := filepath.Glob(filepath.Join(w.dir, "*.yml"))
	if err != nil {
		return err
	}
	matches = append(matches, ymlMatches...)

	for _, path := range matches {
		w.reload(path)
	}
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("workflow directory watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isDefinitionFile(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.logger.Info("workflow definition removed", zap.String("path", event.Name))
		if w.onRemove != nil {
			w.onRemove(event.Name)
		}
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.reload(event.Name)
	}
}

func (w *Watcher) reload(path string) {
	def, err := workflow.LoadDefinitionFromFile(path)
	if err != nil {
		w.logger.Warn("workflow definition reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("workflow definition loaded", zap.String("path", path), zap.String("name", def.Name))
	if w.onChange != nil {
		w.onChange(path, def)
	}
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
