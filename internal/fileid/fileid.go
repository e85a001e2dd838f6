// Package fileid identifies imported files and detects when they change.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const prefix = "file:"

// SourceID returns a stable id for the given absolute path.
// Same path always yields the same id.
func SourceID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// Source is a file on disk as seen at one point in time.
type Source struct {
	ID      string
	Path    string // absolute
	Size    int64
	ModTime int64 // unix nanoseconds
}

// Stat resolves path to an absolute path and reads its size and modification time.
func Stat(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Source{}, err
	}
	if fi.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", abs)
	}
	return Source{
		ID:      SourceID(abs),
		Path:    abs,
		Size:    fi.Size(),
		ModTime: fi.ModTime().UnixNano(),
	}, nil
}

// Unchanged reports whether s still has the given size and modification time.
func (s Source) Unchanged(size, modTime int64) bool {
	return s.Size == size && s.ModTime == modTime
}
