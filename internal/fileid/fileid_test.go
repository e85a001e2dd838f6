package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSourceID(t *testing.T) {
	id1 := SourceID("/vokabeln/liste.txt")
	if id1 != SourceID("/vokabeln/liste.txt") {
		t.Error("same path should give same id")
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("id should have prefix %q: got %q", prefix, id1)
	}
	if id1 == SourceID("/vokabeln/liste2.txt") {
		t.Error("different paths should give different ids")
	}
}

func TestSourceID_Normalized(t *testing.T) {
	id := SourceID("/foo/bar")
	for _, p := range []string{"/foo/bar/", "/foo/./bar", "/foo/baz/../bar"} {
		if SourceID(p) != id {
			t.Errorf("SourceID(%q) should equal SourceID(/foo/bar)", p)
		}
	}
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "liste.txt")
	if err := os.WriteFile(path, []byte("Haus | house\n"), 0600); err != nil {
		t.Fatal(err)
	}

	src, err := Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if src.Path != path || src.ID != SourceID(path) || src.Size != 13 {
		t.Errorf("Stat = %+v", src)
	}
	if !src.Unchanged(src.Size, src.ModTime) {
		t.Error("Unchanged should hold for the values just read")
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	again, err := Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if again.Unchanged(src.Size, src.ModTime) {
		t.Error("a touched file should count as changed")
	}
	if again.ID != src.ID {
		t.Error("id must not depend on the modification time")
	}
}

func TestStat_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Stat(filepath.Join(dir, "missing.txt")); !os.IsNotExist(err) {
		t.Errorf("missing file error = %v, want not-exist", err)
	}
	if _, err := Stat(dir); err == nil {
		t.Error("a directory should be rejected")
	}
}
