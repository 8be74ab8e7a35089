package extract

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// UploadedFile is a file written to temp storage by the upload handler.
type UploadedFile struct {
	Path         string `json:"path"`
	OriginalName string `json:"name"`
	MIMEType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// BatchResult is the outcome of extracting a batch of uploads.
type BatchResult struct {
	// Succeeded is always true; per-file outcomes live in PerFile and Failures.
	Succeeded bool     `json:"success"`
	Corpus    string   `json:"corpus"`
	PerFile   []Result `json:"perFile"`
	Failures  []Result `json:"failures,omitempty"`
}

// CorpusHeader is the delimiter line placed before each file's text in a corpus.
func CorpusHeader(name string) string {
	return "\n\n===== 文件: " + name + " =====\n"
}

// ExtractAll extracts every file in submission order and joins the successful
// texts into one corpus. A failing file never stops the batch.
func (e *Extractor) ExtractAll(files []UploadedFile) BatchResult {
	out := BatchResult{
		Succeeded: true,
		PerFile:   make([]Result, 0, len(files)),
	}
	var corpus strings.Builder
	for _, f := range files {
		res := e.Extract(f.Path, f.MIMEType)
		res.FileName = f.OriginalName
		if res.FileName == "" {
			res.FileName = filepath.Base(f.Path)
		}
		out.PerFile = append(out.PerFile, res)
		if !res.Succeeded {
			e.logger.Warn("Skipping file in batch",
				zap.String("file", res.FileName),
				zap.String("reason", res.ErrorReason))
			out.Failures = append(out.Failures, res)
			continue
		}
		corpus.WriteString(CorpusHeader(res.FileName))
		corpus.WriteString(res.Text)
	}
	out.Corpus = strings.TrimSpace(corpus.String())
	return out
}
