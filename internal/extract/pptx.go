package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	pptxSlide     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxParagraph = regexp.MustCompile(`(?s)<a:p[ >].*?</a:p>`)
	pptxRun       = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
)

// extractPPTX returns the text of every slide in slide order, one line per
// paragraph.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract PPTX: %w", err)
	}

	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := pptxSlide.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var lines []string
	for _, s := range slides {
		doc, err := readZipEntry(zr, s.name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		lines = append(lines, paragraphs(string(doc), pptxParagraph, pptxRun)...)
	}
	return strings.Join(lines, "\n"), nil
}
