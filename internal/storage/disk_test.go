package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "materials.json")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "uploads", "tmp")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.pdf"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.txt"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  Usage
	}{
		{"file", []string{f1}, Usage{Bytes: 5, Files: 1}},
		{"dir", []string{sub}, Usage{Bytes: 3, Files: 2}},
		{"file and dir", []string{f1, sub}, Usage{Bytes: 8, Files: 3}},
		{"missing skipped", []string{f1, filepath.Join(dir, "nonexistent"), sub}, Usage{Bytes: 8, Files: 3}},
		{"empty skipped", []string{"", f1}, Usage{Bytes: 5, Files: 1}},
		{"root", []string{dir}, Usage{Bytes: 8, Files: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsage(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
