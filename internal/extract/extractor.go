// Package extract turns uploaded documents into plain text for prompt context.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Failure reasons reported to clients. They are part of the HTTP contract.
const (
	ReasonImage       = "图片文件暂不支持文本提取"
	ReasonUnsupported = "不支持的文件类型"
	ReasonFailed      = "文件处理失败"
)

// ErrUnsupportedFormat is returned by ExtractBytes for formats without a decoder.
var ErrUnsupportedFormat = errors.New("unsupported format")

type decoder func(content []byte) (string, error)

// decoders is the single dispatch table for text extraction. The upload allow-list
// is derived from it through Format.Uploadable.
var decoders = map[Format]decoder{
	FormatPDF:          extractPDF,
	FormatDOCX:         extractDOCX,
	FormatPlainText:    extractPlain,
	FormatSpreadsheet:  extractExcel,
	FormatPresentation: extractPPTX,
	FormatOpenDocument: extractOpenDocument,
	FormatRTF:          extractRTF,
}

// Result is the outcome of extracting one file.
type Result struct {
	FileName    string `json:"fileName"`
	Format      Format `json:"-"`
	Succeeded   bool   `json:"succeeded"`
	Text        string `json:"text"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Extractor extracts plain text from document files.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns a new Extractor. A nil logger discards output.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract reads the file at path and returns its text. The format comes from
// mimeType, then the extension of path, then the file content. Extract never
// returns an error: every failure is reported in the Result. The file is not
// modified.
func (e *Extractor) Extract(path, mimeType string) Result {
	name := filepath.Base(path)
	res := Result{FileName: name, Format: DetectFormat(mimeType, name)}

	var content []byte
	if Inconclusive(mimeType, name) {
		b, err := os.ReadFile(path)
		if err != nil {
			return e.fail(res, err)
		}
		content = b
		res.Format = SniffFormat(content)
	}

	switch {
	case res.Format == FormatImage:
		res.ErrorReason = ReasonImage
		return res
	case !res.Format.Decodable():
		res.ErrorReason = ReasonUnsupported
		return res
	}

	if content == nil {
		b, err := os.ReadFile(path)
		if err != nil {
			return e.fail(res, err)
		}
		content = b
	}

	text, err := e.ExtractBytes(content, res.Format)
	if err != nil {
		return e.fail(res, err)
	}
	res.Succeeded = true
	res.Text = text
	return res
}

// ExtractBytes decodes content of the given format. Empty content of a decodable
// format yields an empty string. Decoder panics are returned as errors.
func (e *Extractor) ExtractBytes(content []byte, format Format) (text string, err error) {
	decode, ok := decoders[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if len(content) == 0 {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("decode %s: %v", format, r)
		}
	}()
	return decode(content)
}

func (e *Extractor) fail(res Result, err error) Result {
	e.logger.Warn("Text extraction failed",
		zap.String("file", res.FileName),
		zap.Stringer("format", res.Format),
		zap.Error(err))
	res.Succeeded = false
	res.Text = ""
	res.ErrorReason = err.Error()
	if res.ErrorReason == "" {
		res.ErrorReason = ReasonFailed
	}
	return res
}
