package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hyperjump/studydesk/internal/config"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
)

const msgInternal = "服务器内部错误"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := CollectStatus(r.Context(), s.storage, s.config, s.logger)
	if err != nil {
		s.respondInternal(w, "status failed", msgInternal, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// CollectStatus counts the records of every category and measures the data on
// disk. A disk usage failure is logged and leaves the usage fields unset.
func CollectStatus(ctx context.Context, store storage.Storage, cfg *config.Config, logger *zap.Logger) (*models.Status, error) {
	status := &models.Status{Records: make(map[string]int, len(models.Categories))}
	for _, c := range models.Categories {
		n, err := store.CountRecords(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c, err)
		}
		status.Records[string(c)] = n
	}
	tutors, err := store.ListTutors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}
	status.Tutors = len(tutors)
	status.Config = &models.StatusConfig{
		StorageDriver: cfg.Storage.Driver,
		DataDir:       cfg.Storage.DataDir,
		MaxFileBytes:  cfg.Upload.MaxFileBytes,
		MaxFiles:      cfg.Upload.MaxFiles,
		Providers:     cfg.ProviderNames(),
	}

	paths := []string{cfg.Storage.UploadsDir()}
	if cfg.Storage.Driver == "sqlite" {
		paths = append(paths, cfg.Storage.DatabasePath)
	} else {
		paths = append(paths, cfg.Storage.TablesDir())
	}
	usage, err := storage.DiskUsage(paths...)
	if err != nil {
		logger.Warn("status: disk usage failed", zap.Error(err))
		return status, nil
	}
	status.DiskUsageBytes = &usage.Bytes
	status.DiskUsageFiles = &usage.Files
	return status, nil
}

// handleContentList serves one category table wrapped under its key, e.g.
// {"lessonPlans": [...]}.
func (s *Server) handleContentList(c models.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.library.List(r.Context(), c)
		if err != nil {
			s.respondInternal(w, "list records failed", msgInternal, err)
			return
		}
		if list == nil {
			list = []models.FileRecord{}
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{string(c): list})
	}
}

// decodeJSON decodes the request body into v, answering 400 on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondInternal logs err and answers 500. The error detail is only sent in
// debug mode.
func (s *Server) respondInternal(w http.ResponseWriter, logMsg, clientMsg string, err error) {
	s.logger.Error(logMsg, zap.Error(err))
	body := map[string]string{"error": clientMsg}
	if s.config.Debug {
		body["message"] = err.Error()
	}
	s.respondJSON(w, http.StatusInternalServerError, body)
}

func panicMessage(rec interface{}) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(rec)
}
