// Package library manages uploaded files and the category records that describe them.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
)

// ErrNameRequired is returned by Save when the record has neither name nor title.
var ErrNameRequired = errors.New("file name is required")

// Library saves, lists and deletes file records and owns the upload directories.
type Library struct {
	store      storage.Storage
	uploadRoot string
	tempDir    string
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger used for file cleanup events.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// WithClock overrides the time source used to stamp upload dates.
func WithClock(now func() time.Time) Option {
	return func(lib *Library) { lib.now = now }
}

// New returns a Library backed by store. Uploads are staged in uploadRoot/tmp,
// which is created if needed.
func New(store storage.Storage, uploadRoot string, opts ...Option) (*Library, error) {
	root, err := filepath.Abs(uploadRoot)
	if err != nil {
		return nil, fmt.Errorf("upload root: %w", err)
	}
	lib := &Library{
		store:      store,
		uploadRoot: root,
		tempDir:    filepath.Join(root, "tmp"),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(lib)
	}
	if err := os.MkdirAll(lib.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return lib, nil
}

// TempDir is where uploads are staged.
func (l *Library) TempDir() string {
	return l.tempDir
}

// UploadRoot is the directory holding every uploaded file.
func (l *Library) UploadRoot() string {
	return l.uploadRoot
}

// Save stores rec in category c with a fresh ID and upload date. A missing name
// is taken from the title and the other way around. Names are compared exactly.
func (l *Library) Save(ctx context.Context, c models.Category, rec models.FileRecord) (*models.FileRecord, error) {
	if rec.Name == "" {
		rec.Name = rec.Title
	}
	if rec.Title == "" {
		rec.Title = rec.Name
	}
	if strings.TrimSpace(rec.Name) == "" {
		return nil, ErrNameRequired
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	rec.ID = ""
	rec.UploadDate = l.now().UTC()
	if err := l.store.InsertRecord(ctx, c, &rec); err != nil {
		return nil, err
	}
	l.logger.Info("File record saved",
		zap.String("category", string(c)),
		zap.String("id", rec.ID),
		zap.String("name", rec.Name))
	return &rec, nil
}

// List returns every record of category c.
func (l *Library) List(ctx context.Context, c models.Category) ([]models.FileRecord, error) {
	return l.store.ListRecords(ctx, c)
}

// Delete removes the record and then its backing file. A backing file that is
// already gone, or that lies outside the upload root, does not fail the call.
func (l *Library) Delete(ctx context.Context, c models.Category, id string) (*models.FileRecord, error) {
	rec, err := l.store.DeleteRecord(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if rec.FilePath == nil || *rec.FilePath == "" {
		return rec, nil
	}
	path := *rec.FilePath
	if !l.within(l.uploadRoot, path) {
		l.logger.Warn("Not removing file outside upload directory",
			zap.String("id", id),
			zap.String("path", path))
		return rec, nil
	}
	switch err := os.Remove(path); {
	case err == nil:
		l.logger.Debug("Backing file removed", zap.String("path", path))
	case errors.Is(err, os.ErrNotExist):
		l.logger.Info("Backing file already removed", zap.String("id", id), zap.String("path", path))
	default:
		l.logger.Warn("Failed to remove backing file", zap.String("path", path), zap.Error(err))
	}
	return rec, nil
}

// CleanupResult is the outcome of removing one staged upload.
type CleanupResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Cleanup removes staged uploads one by one. Paths outside the staging directory
// are refused; a failure for one path does not affect the others.
func (l *Library) Cleanup(paths []string) []CleanupResult {
	results := make([]CleanupResult, 0, len(paths))
	for _, p := range paths {
		res := CleanupResult{Path: p}
		switch {
		case !l.within(l.tempDir, p):
			res.Error = "path is outside the upload directory"
		default:
			if err := os.Remove(p); err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
			}
		}
		if !res.Success {
			l.logger.Debug("Cleanup skipped file", zap.String("path", p), zap.String("reason", res.Error))
		}
		results = append(results, res)
	}
	return results
}

// within reports whether path resolves to an entry strictly inside dir.
func (l *Library) within(dir, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
