package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/hyperjump/studydesk/internal/auth"
	"github.com/hyperjump/studydesk/internal/chat"
	"github.com/hyperjump/studydesk/internal/config"
	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/library"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeModel struct {
	input []*schema.Message
	model string
	reply string
	err   error
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	if o := model.GetCommonOptions(&model.Options{}, opts...); o.Model != nil {
		f.model = *o.Model
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   storage.Storage
	lib     *library.Library
	auth    *auth.Service
	model   *fakeModel
	cfg     *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{Storage: config.StorageConfig{DataDir: t.TempDir()}}
	config.ApplyDefaults(cfg)
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.NewJSONStorage(cfg.Storage.TablesDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	lib, err := library.New(store, cfg.Storage.UploadsDir())
	if err != nil {
		t.Fatal(err)
	}
	authSvc := auth.NewService(store, cfg.Auth.TokenTTL(), auth.WithBcryptCost(bcrypt.MinCost))

	fm := &fakeModel{reply: "hello from the model"}
	var providers []chat.Provider
	for _, name := range cfg.ProviderNames() {
		p := cfg.Providers[name]
		key := ""
		if name == "deepseek" {
			key = "sk-test"
		}
		providers = append(providers, chat.Provider{Name: name, BaseURL: p.BaseURL, Model: p.Model, APIKey: key, KeyEnv: p.APIKeyEnv})
	}
	chatSvc := chat.NewService(providers, chat.WithModelFactory(
		func(context.Context, chat.Provider, string) (model.BaseChatModel, error) { return fm, nil }))

	srv := NewServer(lib, library.NewTutors(store, nil), extract.NewExtractor(nil), authSvc, chatSvc, store, cfg, zap.NewNop())
	return &testEnv{
		srv:     srv,
		handler: srv.Handler(),
		store:   store,
		lib:     lib,
		auth:    authSvc,
		model:   fm,
		cfg:     cfg,
	}
}

// do sends a request. body may be nil, an io.Reader sent as is, or a value
// encoded as JSON.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		r = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if _, ok := body.(io.Reader); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type: got %q", ct)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if decode(t, w)["status"] != "ok" {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/courses", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
	if decode(t, w)["error"] == nil {
		t.Error("404 should carry an error field")
	}

	w = env.do(t, http.MethodPatch, "/api/tutors", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestRecoverJSON(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Debug = true })
	h := env.srv.recoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/materials", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d", w.Code)
	}
	body := decode(t, w)
	if body["error"] != msgInternal || body["message"] != "boom" {
		t.Errorf("body: %v", body)
	}
}

func TestHandleContentList(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, tc := range []struct {
		path, key string
	}{
		{"/api/materials", "materials"},
		{"/api/lesson-plans", "lessonPlans"},
		{"/api/resources", "resources"},
	} {
		t.Run(tc.key, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tc.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status: got %d", w.Code)
			}
			list, ok := decode(t, w)[tc.key].([]interface{})
			if !ok || len(list) != 0 {
				t.Errorf("empty table should list as [], got %s", w.Body.String())
			}
		})
	}

	if _, err := env.lib.Save(context.Background(), models.CategoryLessonPlans, models.FileRecord{Name: "Week 3 plan"}); err != nil {
		t.Fatal(err)
	}
	w := env.do(t, http.MethodGet, "/api/lesson-plans", nil)
	list := decode(t, w)["lessonPlans"].([]interface{})
	if len(list) != 1 || list[0].(map[string]interface{})["id"] != "lp001" {
		t.Errorf("list: %s", w.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for _, n := range []string{"a", "b"} {
		if _, err := env.lib.Save(ctx, models.CategoryResources, models.FileRecord{Name: n}); err != nil {
			t.Fatal(err)
		}
	}
	staged := filepath.Join(env.lib.TempDir(), "x.txt")
	if err := os.WriteFile(staged, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Records        map[string]int `json:"records"`
		DiskUsageBytes int64          `json:"disk_usage_bytes"`
		Config         struct {
			StorageDriver string   `json:"storage_driver"`
			Providers     []string `json:"providers"`
		} `json:"config"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Records["resources"] != 2 || out.Records["materials"] != 0 {
		t.Errorf("records: %v", out.Records)
	}
	if out.DiskUsageBytes < 5 {
		t.Errorf("disk usage: %d", out.DiskUsageBytes)
	}
	if out.Config.StorageDriver != "json" || len(out.Config.Providers) != 4 {
		t.Errorf("config: %+v", out.Config)
	}
}

func TestStaticDir(t *testing.T) {
	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>studydesk</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, func(c *config.Config) { c.Server.StaticDir = static })
	w := env.do(t, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "studydesk") {
		t.Errorf("static index: %d %q", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("api routes must win over static files: %d", w.Code)
	}
}

func TestRequireToken(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Auth.RequireToken = true })
	ctx := context.Background()
	if _, err := env.auth.CreateUser(ctx, auth.NewUser{StudentID: "2024001", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/api/materials", nil)
	if w.Code != http.StatusUnauthorized || decode(t, w)["error"] != auth.MsgTokenMissing {
		t.Errorf("no token: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodGet, "/api/materials", nil, "Authorization", "Bearer nope")
	if w.Code != http.StatusForbidden {
		t.Errorf("bad token: %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"studentId": "2024001", "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	token := decode(t, w)["token"].(string)

	w = env.do(t, http.MethodGet, "/api/materials", nil, "Authorization", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Errorf("with token: %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/auth/logout", nil, "Authorization", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Errorf("logout: %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/materials", nil, "Authorization", "Bearer "+token)
	if w.Code != http.StatusForbidden {
		t.Errorf("after logout: %d", w.Code)
	}
}
