package library

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/fileid"
	"go.uber.org/zap"
)

// ErrFileTooLarge is returned by Stage when the content exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

// Stage copies r into a new randomly named file in the staging directory. The
// original extension is kept. Content over maxBytes is rejected and nothing is
// left on disk.
func (l *Library) Stage(r io.Reader, originalName, mimeType string, maxBytes int64) (extract.UploadedFile, error) {
	path := filepath.Join(l.tempDir, fileid.TempName(originalName))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return extract.UploadedFile{}, fmt.Errorf("create staged file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrFileTooLarge) {
			return extract.UploadedFile{}, err
		}
		return extract.UploadedFile{}, fmt.Errorf("write staged file: %w", err)
	}
	l.logger.Debug("Upload staged",
		zap.String("name", originalName),
		zap.String("path", path),
		zap.Int64("size", n))
	return extract.UploadedFile{
		Path:         path,
		OriginalName: originalName,
		MIMEType:     mimeType,
		Size:         n,
	}, nil
}

// Discard removes staged files, ignoring files that are already gone.
func (l *Library) Discard(files []extract.UploadedFile) {
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to discard staged file", zap.String("path", f.Path), zap.Error(err))
		}
	}
}
