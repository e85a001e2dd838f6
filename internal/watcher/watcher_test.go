package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/wortnest/internal/indexer"
	"github.com/hyperjump/wortnest/internal/models"
)

type recordingImporter struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingImporter) ImportFile(_ context.Context, path string) (*models.BatchReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.err != nil {
		return nil, r.err
	}
	return &models.BatchReport{Source: path}, nil
}

func (r *recordingImporter) imported() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_importsNewFileOnce(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w := NewWatcher(imp, WithInboxes(dir), WithExtensions([]string{".txt"}), WithDebounce(100*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "wörter.txt")
	writeFile(t, path, "Haus | house\n")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintln(f, "Baum | tree")
	f.Close()
	writeFile(t, filepath.Join(dir, "notes.xyz"), "ignored")

	waitFor(t, func() bool { return len(imp.imported()) >= 1 })
	time.Sleep(250 * time.Millisecond)

	got := imp.imported()
	if len(got) != 1 || !strings.HasSuffix(got[0], "wörter.txt") {
		t.Errorf("imported = %v, want one debounced import of wörter.txt", got)
	}
}

func TestWatcher_newDirectoryIsImportedRecursively(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w := NewWatcher(imp,
		WithInboxes(dir),
		WithExtensions([]string{".txt", ".csv"}),
		WithRecursive(true),
		WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "lektion1", "kapitel2", "verben.csv"), "gehen,to go\n")
	writeFile(t, filepath.Join(dir, "lektion1", "nomen.txt"), "Tisch | table\n")

	waitFor(t, func() bool {
		got := imp.imported()
		return hasSuffix(got, "verben.csv") && hasSuffix(got, "nomen.txt")
	})
}

func TestWatcher_importErrorsDoNotStopWatching(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{err: indexer.ErrUnchanged}
	w := NewWatcher(imp, WithInboxes(dir), WithDebounce(20*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	waitFor(t, func() bool { return len(imp.imported()) == 1 })
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	waitFor(t, func() bool { return len(imp.imported()) == 2 })
}

func TestWatcher_AddRemoveInbox(t *testing.T) {
	first := t.TempDir()
	second := filepath.Join(t.TempDir(), "missing", "inbox")
	writeFile(t, filepath.Join(first, "existing.txt"), "Hund | dog")

	imp := &recordingImporter{}
	w := NewWatcher(imp, WithExtensions([]string{"txt"}))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddInbox(first, true); err != nil {
		t.Fatal(err)
	}
	if err := w.AddInbox(first, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddInbox(second, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(second); err != nil {
		t.Errorf("inbox should be created: %v", err)
	}
	if got := w.Inboxes(); len(got) != 2 {
		t.Fatalf("Inboxes() = %v", got)
	}
	waitFor(t, func() bool { return hasSuffix(imp.imported(), "existing.txt") })

	if err := w.RemoveInbox(first); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveInbox("/not/watched"); err != nil {
		t.Fatal(err)
	}
	got := w.Inboxes()
	if len(got) != 1 || got[0] != second {
		t.Errorf("after remove: %v", got)
	}
}

func TestWatcher_ImportExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, ".hidden.txt"), "h")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "c.png"), "c")

	tests := []struct {
		name      string
		recursive bool
		want      int
	}{
		{"flat", false, 1},
		{"recursive", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := &recordingImporter{}
			w := NewWatcher(imp, WithInboxes(dir), WithExtensions([]string{".txt"}), WithRecursive(tt.recursive))
			w.ImportExisting(context.Background())
			if got := imp.imported(); len(got) != tt.want {
				t.Errorf("imported %v, want %d files", got, tt.want)
			}
		})
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(&recordingImporter{}, WithInboxes(t.TempDir()))
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	w.Stop()
	w.Stop()
}

func TestHasExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b.xlsx", []string{".csv", ".XLSX"}, true},
	}
	for _, tt := range tests {
		if got := hasExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("hasExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/ab", false},
	}
	for _, tt := range tests {
		if got := within(tt.dir, tt.path); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
