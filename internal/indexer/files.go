package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/wortnest/internal/extract"
	"github.com/hyperjump/wortnest/internal/fileid"
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/internal/storage"
	"go.uber.org/zap"
)

// ErrUnchanged is returned by ImportFile for a file that was already imported
// with the same size and modification time.
var ErrUnchanged = errors.New("file unchanged since last import")

func newReport(source string) *models.BatchReport {
	return &models.BatchReport{ID: uuid.NewString(), Source: source, Entries: []models.BatchEntry{}}
}

// ImportFile extracts the lines of the file at path and imports them. Files
// already imported with the same size and modification time return ErrUnchanged.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (*models.BatchReport, error) {
	src, err := fileid.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !idx.extensionAllowed(filepath.Ext(src.Path)) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, filepath.Base(src.Path))
	}

	rec, err := idx.storage.GetImport(ctx, src.ID)
	switch {
	case err == nil && src.Unchanged(rec.Size, rec.ModTime):
		idx.logger.Debug("skipping unchanged file", zap.String("path", src.Path))
		return nil, ErrUnchanged
	case err != nil && !isNotFound(err):
		return nil, fmt.Errorf("read import ledger: %w", err)
	}

	idx.logger.Debug("importing file", zap.String("path", src.Path))
	text, err := idx.extractor.Extract(src.Path)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	report := idx.ImportBatch(ctx, src.Path, ParseLines(text, idx.defaultType))

	err = idx.storage.RecordImport(ctx, &storage.ImportRecord{
		SourceID:  src.ID,
		Path:      src.Path,
		Size:      src.Size,
		ModTime:   src.ModTime,
		ItemCount: report.Count(models.OutcomeImported) + report.Count(models.OutcomeUpdated),
	})
	if err != nil {
		return report, fmt.Errorf("record import: %w", err)
	}
	return report, nil
}

// ImportDirectory walks dir and imports every regular file with an allowed
// extension. Unchanged files are skipped silently; the first other error stops the walk.
func (idx *Indexer) ImportDirectory(ctx context.Context, dir string) ([]*models.BatchReport, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var reports []*models.BatchReport
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.extensionAllowed(filepath.Ext(path)) {
			return nil
		}
		// Resolve symlinks so only regular files are imported.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		report, importErr := idx.ImportFile(ctx, path)
		if errors.Is(importErr, ErrUnchanged) {
			return nil
		}
		if importErr != nil {
			return importErr
		}
		reports = append(reports, report)
		return nil
	})
	return reports, err
}

// extensionAllowed checks the configured list, or every extractable format when none is set.
func (idx *Indexer) extensionAllowed(ext string) bool {
	if len(idx.allowedExts) == 0 {
		return extract.Supported(ext)
	}
	return extensionAllowed(ext, idx.allowedExts) && extract.Supported(ext)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
