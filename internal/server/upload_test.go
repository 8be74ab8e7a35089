package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/studydesk/internal/config"
	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/models"
)

type filePart struct {
	name    string
	mime    string
	content []byte
}

func multipartBody(t *testing.T, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.name))
		if p.mime != "" {
			h.Set("Content-Type", p.mime)
		}
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(p.content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, parts ...filePart) (int, uploadResponse, map[string]interface{}) {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	w := e.do(t, http.MethodPost, "/api/upload", body, "Content-Type", ct)
	var resp uploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp, decode(t, w)
}

// minimalPDF builds a one-font PDF with one text line per page.
func minimalPDF(pages ...string) []byte {
	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>"}
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func stagedFiles(t *testing.T, e *testEnv) []string {
	t.Helper()
	entries, err := os.ReadDir(e.lib.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		names = append(names, ent.Name())
	}
	return names
}

func TestUpload_PDF(t *testing.T) {
	env := newTestEnv(t, nil)
	code, resp, _ := env.upload(t, filePart{"cells.pdf", "application/pdf", minimalPDF("Mitochondria power the cell")})
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if !resp.Success || resp.Message != "成功处理 1 个文件" {
		t.Errorf("response: %+v", resp)
	}
	if !strings.HasPrefix(resp.ExtractedText, "===== 文件: cells.pdf =====\n") {
		t.Errorf("corpus should open with the file header: %q", resp.ExtractedText)
	}
	if !strings.Contains(resp.ExtractedText, "Mitochondria") {
		t.Errorf("corpus missing page text: %q", resp.ExtractedText)
	}
	if len(resp.Files) != 1 || resp.Files[0].Name != "cells.pdf" || resp.Files[0].Size == 0 {
		t.Fatalf("files: %+v", resp.Files)
	}
	path := resp.Files[0].Path
	if filepath.Dir(path) != env.lib.TempDir() || filepath.Ext(path) != ".pdf" || filepath.Base(path) == "cells.pdf" {
		t.Errorf("staged path %q should be a random name in the staging dir", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("staged file should be kept for save-file: %v", err)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("warnings: %+v", resp.Warnings)
	}
}

func TestUpload_ImageIsStoredButNotExtracted(t *testing.T) {
	env := newTestEnv(t, nil)
	code, resp, _ := env.upload(t,
		filePart{"notes.pdf", "application/pdf", minimalPDF("Osmosis")},
		filePart{"diagram.png", "image/png", pngHeader},
	)
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if !strings.Contains(resp.ExtractedText, "Osmosis") || strings.Contains(resp.ExtractedText, "diagram.png") {
		t.Errorf("corpus: %q", resp.ExtractedText)
	}
	if len(resp.Files) != 2 || resp.Message != "成功处理 2 个文件" {
		t.Errorf("files: %+v", resp.Files)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Name != "diagram.png" || resp.Warnings[0].Error != extract.ReasonImage {
		t.Errorf("warnings: %+v", resp.Warnings)
	}
}

func TestUpload_CorpusInSubmissionOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	_, resp, _ := env.upload(t,
		filePart{"b.txt", "text/plain", []byte("second upload")},
		filePart{"a.md", "", []byte("# first")},
	)
	want := "===== 文件: b.txt =====\nsecond upload\n\n===== 文件: a.md =====\n# first"
	if resp.ExtractedText != want {
		t.Errorf("corpus:\n got %q\nwant %q", resp.ExtractedText, want)
	}
}

func TestUpload_Rejections(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code, _, body := env.upload(t)
		if code != http.StatusBadRequest || body["error"] != msgNoFiles {
			t.Errorf("got %d %v", code, body)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		env := newTestEnv(t, nil)
		w := env.do(t, http.MethodPost, "/api/upload", map[string]string{"files": "x"})
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != msgNoFiles {
			t.Errorf("got %d %s", w.Code, w.Body.String())
		}
	})

	for _, tc := range []struct {
		name  string
		cfg   func(*config.Config)
		parts []filePart
		code  string
	}{
		{
			name:  "unsupported type rolls back earlier files",
			parts: []filePart{{"ok.txt", "text/plain", []byte("fine")}, {"legacy.doc", "application/msword", []byte("\xd0\xcf\x11\xe0")}},
			code:  CodeUnsupportedType,
		},
		{
			name:  "unknown content is sniffed and refused",
			parts: []filePart{{"blob", "application/octet-stream", []byte("\x00\x01\x02\x03binary")}},
			code:  CodeUnsupportedType,
		},
		{
			name:  "file too large",
			cfg:   func(c *config.Config) { c.Upload.MaxFileBytes = 8 },
			parts: []filePart{{"a.txt", "text/plain", []byte("tiny")}, {"b.txt", "text/plain", []byte("more than eight bytes")}},
			code:  CodeFileTooLarge,
		},
		{
			name:  "too many files",
			cfg:   func(c *config.Config) { c.Upload.MaxFiles = 2 },
			parts: []filePart{{"a.txt", "text/plain", []byte("a")}, {"b.txt", "text/plain", []byte("b")}, {"c.txt", "text/plain", []byte("c")}},
			code:  CodeTooManyFiles,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.cfg)
			code, _, body := env.upload(t, tc.parts...)
			if code != http.StatusBadRequest || body["code"] != tc.code {
				t.Errorf("got %d %v, want code %s", code, body, tc.code)
			}
			if left := stagedFiles(t, env); len(left) != 0 {
				t.Errorf("rejected upload left files behind: %v", left)
			}
		})
	}
}

func TestUpload_SniffsGenericUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	code, resp, _ := env.upload(t, filePart{"scan", "application/octet-stream", minimalPDF("Sniffed upload")})
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if !strings.Contains(resp.ExtractedText, "Sniffed") {
		t.Errorf("corpus: %q", resp.ExtractedText)
	}
}

func saveBody(category, name, path string) map[string]interface{} {
	return map[string]interface{}{
		"category": category,
		"fileData": map[string]interface{}{
			"title":    name,
			"name":     name,
			"fileType": "pdf",
			"size":     "1.2 KB",
			"filePath": path,
			"week":     1,
			"subject":  "",
			"tags":     []string{},
		},
	}
}

func TestSaveFile(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/upload/save-file", saveBody("resource", "Week1 Notes", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("first save: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["fileId"] != "res001" {
		t.Errorf("first save: %v", body)
	}

	w = env.do(t, http.MethodPost, "/api/upload/save-file", saveBody("resources", "Week1 Notes", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate save: %d", w.Code)
	}
	body = decode(t, w)
	existing, _ := body["existingFile"].(map[string]interface{})
	if body["error"] != msgFileExists || existing["id"] != "res001" {
		t.Errorf("duplicate save: %v", body)
	}

	list, _ := env.lib.List(context.Background(), models.CategoryResources)
	if len(list) != 1 {
		t.Errorf("duplicate must not be stored, got %d records", len(list))
	}
}

func TestSaveFile_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, tc := range []struct {
		name string
		body interface{}
		want string
	}{
		{"unknown category", saveBody("courses", "x", ""), msgInvalidCategory},
		{"empty name", saveBody("materials", "", ""), msgNameRequired},
		{"missing file data", map[string]string{"category": "materials"}, msgFileDataRequired},
		{"malformed body", strings.NewReader("{"), "invalid request body"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/upload/save-file", tc.body)
			if w.Code != http.StatusBadRequest || decode(t, w)["error"] != tc.want {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t, nil)
	_, resp, _ := env.upload(t, filePart{"plan.txt", "text/plain", []byte("lesson")})
	staged := resp.Files[0].Path

	w := env.do(t, http.MethodPost, "/api/upload/save-file", saveBody("lesson_plans", "plan.txt", staged))
	id, _ := decode(t, w)["fileId"].(string)
	if id != "lp001" {
		t.Fatalf("save: %s", w.Body.String())
	}

	w = env.do(t, http.MethodDelete, "/api/upload/delete-file/lessonPlan/"+id, nil)
	if w.Code != http.StatusOK || decode(t, w)["success"] != true {
		t.Errorf("delete: %d %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Errorf("backing file should be removed, stat err = %v", err)
	}

	w = env.do(t, http.MethodDelete, "/api/upload/delete-file/lessonPlan/"+id, nil)
	if w.Code != http.StatusNotFound || decode(t, w)["error"] != msgFileNotFound {
		t.Errorf("repeat delete: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodDelete, "/api/upload/delete-file/courses/"+id, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown category: %d", w.Code)
	}
}

func TestDeleteFile_BackingFileAlreadyGone(t *testing.T) {
	env := newTestEnv(t, nil)
	gone := filepath.Join(env.lib.TempDir(), "already-removed.pdf")
	w := env.do(t, http.MethodPost, "/api/upload/save-file", saveBody("materials", "old.pdf", gone))
	id, _ := decode(t, w)["fileId"].(string)

	w = env.do(t, http.MethodDelete, "/api/upload/delete-file/materials/"+id, nil)
	if w.Code != http.StatusOK || decode(t, w)["success"] != true {
		t.Errorf("delete: %d %s", w.Code, w.Body.String())
	}
	list, _ := env.lib.List(context.Background(), models.CategoryMaterials)
	if len(list) != 0 {
		t.Errorf("record should be removed, got %+v", list)
	}
}

func TestCleanup(t *testing.T) {
	env := newTestEnv(t, nil)
	_, resp, _ := env.upload(t, filePart{"a.txt", "text/plain", []byte("a")})
	staged := resp.Files[0].Path
	outside := filepath.Join(t.TempDir(), "keep.txt")
	if err := os.WriteFile(outside, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/api/upload/cleanup", map[string]interface{}{
		"filePaths": []string{staged, outside, staged},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("cleanup: %d", w.Code)
	}
	var out struct {
		Success bool `json:"success"`
		Results []struct {
			Path    string `json:"path"`
			Success bool   `json:"success"`
			Error   string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || len(out.Results) != 3 {
		t.Fatalf("results: %+v", out)
	}
	if !out.Results[0].Success || out.Results[1].Success || out.Results[2].Success {
		t.Errorf("results: %+v", out.Results)
	}
	if out.Results[1].Error == "" || out.Results[2].Error == "" {
		t.Errorf("failures should carry a reason: %+v", out.Results)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside the staging dir must not be touched: %v", err)
	}

	for _, bad := range []interface{}{
		map[string]interface{}{"filePaths": "a.txt"},
		map[string]interface{}{},
		map[string]interface{}{"filePaths": nil},
	} {
		w := env.do(t, http.MethodPost, "/api/upload/cleanup", bad)
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != msgInvalidPaths {
			t.Errorf("%v: got %d %s", bad, w.Code, w.Body.String())
		}
	}
}
