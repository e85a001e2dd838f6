// Package watcher imports vocabulary files dropped into inbox directories.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/wortnest/internal/indexer"
	"github.com/hyperjump/wortnest/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Importer imports a single file. *indexer.Indexer and *vocab.Service satisfy it.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*models.BatchReport, error)
}

// Watcher watches inbox directories and imports files that are created or
// rewritten there. Writes are debounced per path so an editor saving in
// several steps produces one import.
type Watcher struct {
	importer   Importer
	extensions []string
	recursive  bool
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	ctx     context.Context
	inboxes []string
	watched map[string][]string // inbox -> directories added to fsw
	pending map[string]*time.Timer
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithInboxes sets the directories watched from Start. Missing ones are created.
func WithInboxes(dirs ...string) Option {
	return func(w *Watcher) { w.inboxes = append(w.inboxes, dirs...) }
}

// WithExtensions limits imports to files with these extensions. Empty means any.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// WithRecursive watches subdirectories of every inbox too.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithDebounce sets how long a path must be quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher returns a Watcher that hands files to importer.
func NewWatcher(importer Importer, opts ...Option) *Watcher {
	w := &Watcher{
		importer: importer,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		watched:  make(map[string][]string),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for i, dir := range w.inboxes {
		if abs, err := filepath.Abs(dir); err == nil {
			w.inboxes[i] = filepath.Clean(abs)
		}
	}
	return w
}

// Start begins watching. It returns once the inboxes are registered; events
// are handled in the background until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.ctx = ctx
	for _, dir := range w.inboxes {
		if err := w.watchLocked(dir); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	w.logger.Info("inbox watcher started",
		zap.Strings("inboxes", w.inboxes),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))

	w.wg.Add(1)
	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.inInbox(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.accepts(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		// Imported items are kept when their source file goes away.
		if w.accepts(path) {
			w.logger.Debug("inbox file removed", zap.String("path", path))
		}
	}
}

func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	recursive := w.recursive
	w.mu.Unlock()
	if fsw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("watch directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		// Files copied in with the directory never produce their own events.
		if w.accepts(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil || w.importer == nil {
		return
	}
	report, err := w.importer.ImportFile(ctx, path)
	switch {
	case errors.Is(err, indexer.ErrUnchanged):
		w.logger.Debug("inbox file unchanged", zap.String("path", path))
	case err != nil:
		w.logger.Warn("inbox import failed", zap.String("path", path), zap.Error(err))
	default:
		w.logger.Info("inbox file imported",
			zap.String("path", path),
			zap.Int("imported", report.Count(models.OutcomeImported)),
			zap.Int("updated", report.Count(models.OutcomeUpdated)),
			zap.Int("failed", report.Count(models.OutcomeFailed)))
	}
}

func (w *Watcher) inInbox(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, dir := range w.inboxes {
		if within(dir, path) {
			return true
		}
	}
	return false
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) accepts(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return hasExtension(path, w.extensions)
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// watchLocked registers dir (and its subdirectories when recursive). w.mu must be held.
func (w *Watcher) watchLocked(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.watched[dir] = []string{dir}
		return nil
	}
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.watched[dir] = dirs
	return nil
}

// AddInbox starts watching dir. With importExisting, files already in it are
// imported in the background.
func (w *Watcher) AddInbox(dir string, importExisting bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	for _, d := range w.inboxes {
		if d == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if w.fsw != nil {
		if err := w.watchLocked(abs); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	w.inboxes = append(w.inboxes, abs)
	ctx := w.ctx
	w.mu.Unlock()
	w.logger.Info("inbox added", zap.String("path", abs))
	if importExisting {
		go w.importDirectory(ctx, abs)
	}
	return nil
}

// RemoveInbox stops watching dir. Items already imported from it are kept.
func (w *Watcher) RemoveInbox(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := -1
	for i, d := range w.inboxes {
		if d == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if w.fsw != nil {
		for _, p := range w.watched[abs] {
			_ = w.fsw.Remove(p)
		}
	}
	delete(w.watched, abs)
	w.inboxes = append(w.inboxes[:idx], w.inboxes[idx+1:]...)
	w.logger.Info("inbox removed", zap.String("path", abs))
	return nil
}

// Inboxes returns the watched directories.
func (w *Watcher) Inboxes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.inboxes...)
}

// ImportExisting imports every accepted file already present in the inboxes.
// Files recorded as unchanged by the importer are skipped cheaply.
func (w *Watcher) ImportExisting(ctx context.Context) {
	for _, dir := range w.Inboxes() {
		w.importDirectory(ctx, dir)
	}
}

func (w *Watcher) importDirectory(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && (!w.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accepts(path) {
			w.importFile(ctx, path)
		}
		return nil
	})
}

// Stop stops watching and drops pending imports. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stop.Do(func() {
		close(w.done)
		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		fsw := w.fsw
		w.fsw = nil
		w.mu.Unlock()
		if fsw != nil {
			_ = fsw.Close()
		}
		w.logger.Info("inbox watcher stopped")
	})
}
