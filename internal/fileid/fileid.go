// Package fileid issues record IDs and randomized names for uploaded files.
package fileid

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// seqWidth is the zero-padded width of the sequence part of a record ID.
const seqWidth = 3

// RecordID returns the ID for the seq-th record issued under prefix, e.g. "mat007".
func RecordID(prefix string, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, seqWidth, seq)
}

// Sequence parses the sequence number back out of an ID issued under prefix.
// ok is false for IDs that were not issued by RecordID (e.g. imported legacy data).
func Sequence(prefix, id string) (int, bool) {
	rest, found := strings.CutPrefix(id, prefix)
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// TempName returns a collision-resistant file name for an upload, keeping the
// original extension so later format detection still works.
func TempName(originalName string) string {
	return uuid.NewString() + safeExt(originalName)
}

func safeExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
