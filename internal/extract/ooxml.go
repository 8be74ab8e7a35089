package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

var errEntryMissing = errors.New("entry not found")

// markupTag matches any XML tag.
var markupTag = regexp.MustCompile(`<[^>]+>`)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	return zr, nil
}

// readZipEntry returns the bytes of the named entry in zr.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s: %w", name, errEntryMissing)
}

// paragraphs returns one line of text per paragraph matched by para. With a run
// pattern only its first submatch contributes; otherwise all markup is stripped.
func paragraphs(doc string, para, run *regexp.Regexp) []string {
	var out []string
	for _, p := range para.FindAllString(doc, -1) {
		var line string
		if run != nil {
			var b strings.Builder
			for _, m := range run.FindAllStringSubmatch(p, -1) {
				b.WriteString(m[1])
			}
			line = b.String()
		} else {
			line = markupTag.ReplaceAllString(p, "")
		}
		line = strings.TrimSpace(html.UnescapeString(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
