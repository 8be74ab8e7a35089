package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	contentTypesPath = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Override elements name the main part; attribute order varies between writers.
	docxPartBefore = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`)
	docxPartAfter  = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`)

	docxParagraph = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxRun       = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
)

// docxBodyPath resolves the main document part from [Content_Types].xml.
func docxBodyPath(types []byte) string {
	s := string(types)
	for _, re := range []*regexp.Regexp{docxPartBefore, docxPartAfter} {
		if m := re.FindStringSubmatch(s); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return ""
}

// extractDOCX returns the text of a .docx, one line per paragraph. Runs inside a
// paragraph are concatenated without separators so split words stay whole.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	body := docxDefaultBody
	if types, err := readZipEntry(zr, contentTypesPath); err == nil {
		if p := docxBodyPath(types); p != "" {
			body = p
		}
	} else if !errors.Is(err, errEntryMissing) {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	doc, err := readZipEntry(zr, body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return strings.Join(paragraphs(string(doc), docxParagraph, docxRun), "\n"), nil
}
