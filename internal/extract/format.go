package extract

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the closed set of file formats the pipeline knows about.
type Format int

const (
	FormatUnsupported Format = iota
	FormatPDF
	FormatDOCX
	FormatPlainText
	FormatSpreadsheet
	FormatPresentation
	FormatOpenDocument
	FormatRTF
	FormatImage
)

var formatNames = map[Format]string{
	FormatUnsupported:  "unsupported",
	FormatPDF:          "pdf",
	FormatDOCX:         "docx",
	FormatPlainText:    "text",
	FormatSpreadsheet:  "spreadsheet",
	FormatPresentation: "presentation",
	FormatOpenDocument: "opendocument",
	FormatRTF:          "rtf",
	FormatImage:        "image",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unsupported"
}

// Decodable reports whether text can be extracted from f.
func (f Format) Decodable() bool {
	_, ok := decoders[f]
	return ok
}

// Uploadable reports whether files of format f are accepted for upload. Images are
// stored but not decoded; everything else must have a decoder.
func (f Format) Uploadable() bool {
	return f == FormatImage || f.Decodable()
}

// byMIME maps specific MIME types to formats. Legacy application/msword is absent on
// purpose: no decoder reads the binary .doc format.
var byMIME = map[string]Format{
	"application/pdf": FormatPDF,
	"text/plain":      FormatPlainText,
	"text/markdown":   FormatPlainText,
	"application/rtf": FormatRTF,
	"text/rtf":        FormatRTF,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   FormatDOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         FormatSpreadsheet,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": FormatPresentation,

	"application/vnd.oasis.opendocument.text":         FormatOpenDocument,
	"application/vnd.oasis.opendocument.presentation": FormatOpenDocument,
	"application/vnd.oasis.opendocument.spreadsheet":  FormatOpenDocument,
}

var byExtension = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".txt":  FormatPlainText,
	".md":   FormatPlainText,
	".xlsx": FormatSpreadsheet,
	".pptx": FormatPresentation,
	".odt":  FormatOpenDocument,
	".odp":  FormatOpenDocument,
	".ods":  FormatOpenDocument,
	".rtf":  FormatRTF,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".png":  FormatImage,
	".gif":  FormatImage,
	".webp": FormatImage,
}

// genericMIME are declared types that say nothing about the content.
var genericMIME = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
	"application/zip":          true,
}

// DetectFormat resolves the format from a declared MIME type, falling back to the
// extension of name when the MIME type is absent, generic or not one we decode.
func DetectFormat(mimeType, name string) Format {
	mt := normalizeMIME(mimeType)
	if f, ok := byMIME[mt]; ok {
		return f
	}
	if f, ok := byExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return f
	}
	if strings.HasPrefix(mt, "image/") {
		return FormatImage
	}
	return FormatUnsupported
}

// Inconclusive reports whether neither mimeType nor name identifies a format, so
// the content has to be sniffed.
func Inconclusive(mimeType, name string) bool {
	return genericMIME[normalizeMIME(mimeType)] && DetectFormat(mimeType, name) == FormatUnsupported
}

// SniffFormat detects the format from file content. It is the last resort when
// neither the declared type nor the extension decides.
func SniffFormat(content []byte) Format {
	m := mimetype.Detect(content)
	for ; m != nil; m = m.Parent() {
		mt := normalizeMIME(m.String())
		if strings.HasPrefix(mt, "image/") {
			return FormatImage
		}
		if f, ok := byMIME[mt]; ok {
			return f
		}
	}
	return FormatUnsupported
}

func normalizeMIME(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return mt
}
