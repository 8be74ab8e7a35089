// Package integration runs the HTTP API end to end against real storage.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hyperjump/studydesk/internal/auth"
	"github.com/hyperjump/studydesk/internal/chat"
	"github.com/hyperjump/studydesk/internal/config"
	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/library"
	"github.com/hyperjump/studydesk/internal/server"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
)

func startServer(t *testing.T, cfg *config.Config) (*httptest.Server, storage.Storage) {
	t.Helper()
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.TablesDir(), cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	lib, err := library.New(store, cfg.Storage.UploadsDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(
		lib,
		library.NewTutors(store, nil),
		extract.NewExtractor(nil),
		auth.NewService(store, cfg.Auth.TokenTTL()),
		chat.NewService(nil),
		store,
		cfg,
		zap.NewNop(),
	)
	ts := httptest.NewServer(srv.Handler())
	return ts, store
}

func postJSON(t *testing.T, client *http.Client, url string, v interface{}, out interface{}) int {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestIntegration_UploadSaveDelete(t *testing.T) {
	for _, driver := range []string{"json", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := &config.Config{Storage: config.StorageConfig{Driver: driver, DataDir: t.TempDir()}}
			config.ApplyDefaults(cfg)
			ts, store := startServer(t, cfg)
			client := ts.Client()

			// Upload two text files.
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			for name, content := range map[string]string{"cells.txt": "Cells divide by mitosis.", "leaves.md": "# Photosynthesis"} {
				fw, err := mw.CreateFormFile("files", name)
				if err != nil {
					t.Fatal(err)
				}
				_, _ = fw.Write([]byte(content))
			}
			_ = mw.Close()
			resp, err := client.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
			if err != nil {
				t.Fatal(err)
			}
			var uploaded struct {
				Success       bool   `json:"success"`
				ExtractedText string `json:"extractedText"`
				Files         []struct {
					Name string `json:"name"`
					Path string `json:"path"`
				} `json:"files"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK || !uploaded.Success || len(uploaded.Files) != 2 {
				t.Fatalf("upload: %d %+v", resp.StatusCode, uploaded)
			}
			if !bytes.Contains([]byte(uploaded.ExtractedText), []byte("mitosis")) {
				t.Errorf("corpus: %q", uploaded.ExtractedText)
			}

			// Save both as materials.
			var ids []string
			for _, f := range uploaded.Files {
				path := f.Path
				var saved struct {
					Success bool   `json:"success"`
					FileID  string `json:"fileId"`
				}
				code := postJSON(t, client, ts.URL+"/api/upload/save-file", map[string]interface{}{
					"category": "materials",
					"fileData": map[string]interface{}{"name": f.Name, "title": f.Name, "filePath": path},
				}, &saved)
				if code != http.StatusOK || !saved.Success {
					t.Fatalf("save %s: %d", f.Name, code)
				}
				ids = append(ids, saved.FileID)
			}
			if ids[0] != "mat001" || ids[1] != "mat002" {
				t.Errorf("ids: %v", ids)
			}

			// Delete the first; its staged file goes with it.
			req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/upload/delete-file/materials/"+ids[0], nil)
			resp, err = client.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("delete: %d", resp.StatusCode)
			}
			if _, err := os.Stat(uploaded.Files[0].Path); !os.IsNotExist(err) {
				t.Errorf("staged file should be removed, stat err = %v", err)
			}

			// Restart on the same data dir; ids keep climbing past deleted ones.
			ts.Close()
			_ = store.Close()
			ts, store = startServer(t, cfg)
			defer ts.Close()
			defer store.Close()
			client = ts.Client()

			var saved struct {
				FileID string `json:"fileId"`
			}
			postJSON(t, client, ts.URL+"/api/upload/save-file", map[string]interface{}{
				"category": "materials",
				"fileData": map[string]interface{}{"name": "late.txt"},
			}, &saved)
			if saved.FileID != "mat003" {
				t.Errorf("id after restart: %q", saved.FileID)
			}

			records, err := store.ListRecords(context.Background(), "materials")
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 2 {
				t.Errorf("records after restart: %d", len(records))
			}

			var cleaned struct {
				Success bool `json:"success"`
			}
			code := postJSON(t, client, ts.URL+"/api/upload/cleanup", map[string]interface{}{
				"filePaths": []string{uploaded.Files[1].Path},
			}, &cleaned)
			if code != http.StatusOK || !cleaned.Success {
				t.Errorf("cleanup: %d", code)
			}
			if _, err := os.Stat(uploaded.Files[1].Path); !os.IsNotExist(err) {
				t.Errorf("cleanup should remove the staged file, stat err = %v", err)
			}
		})
	}
}
