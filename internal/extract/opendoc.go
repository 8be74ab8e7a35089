package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lu4p/cat"
)

const odfContentPath = "content.xml"

var (
	odfParagraph = regexp.MustCompile(`(?s)<text:[ph][ >].*?</text:[ph]>`)
	odfSpace     = regexp.MustCompile(`<text:(?:s|tab)(?:\s[^>]*)?/>`)
	odfBreak     = regexp.MustCompile(`<text:line-break(?:\s[^>]*)?/>`)
)

// extractOpenDocument reads content.xml of an .odt, .odp or .ods package. Every
// text:p and text:h element becomes one line, including spreadsheet cells and
// presentation frames.
func extractOpenDocument(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	doc, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	s := odfSpace.ReplaceAllString(string(doc), " ")
	s = odfBreak.ReplaceAllString(s, " ")
	return strings.Join(paragraphs(s, odfParagraph, nil), "\n"), nil
}

func extractRTF(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract RTF: %w", err)
	}
	return strings.TrimSpace(text), nil
}
