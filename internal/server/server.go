// Package server provides the HTTP API for studydesk.
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/studydesk/internal/auth"
	"github.com/hyperjump/studydesk/internal/chat"
	"github.com/hyperjump/studydesk/internal/config"
	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/library"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the studydesk API.
type Server struct {
	library   *library.Library
	tutors    *library.Tutors
	extractor *extract.Extractor
	auth      *auth.Service
	chat      *chat.Service
	storage   storage.Storage
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	lib *library.Library,
	tutors *library.Tutors,
	extractor *extract.Extractor,
	authSvc *auth.Service,
	chatSvc *chat.Service,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		library:   lib,
		tutors:    tutors,
		extractor: extractor,
		auth:      authSvc,
		chat:      chatSvc,
		storage:   storage,
		config:    cfg,
		logger:    logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverJSON)
	if d := s.config.Server.RequestTimeout(); d > 0 {
		r.Use(middleware.Timeout(d))
	}
	r.Use(middleware.Compress(5))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			if s.config.Auth.RequireToken {
				r.Use(s.auth.Middleware)
			}
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/status", s.handleStatus)

			r.Get("/users", s.handleUsersList)
			r.Post("/users", s.handleUsersCreate)
			r.Put("/users/{studentId}", s.handleUsersUpdate)

			r.Get("/tutors", s.handleTutorsList)
			r.Post("/tutors", s.handleTutorsCreate)
			r.Put("/tutors/{id}", s.handleTutorsUpdate)
			r.Delete("/tutors/{id}", s.handleTutorsDelete)

			for _, c := range models.Categories {
				r.Get("/"+c.TableName(), s.handleContentList(c))
			}

			r.Post("/upload", s.handleUpload)
			r.Post("/upload/save-file", s.handleSaveFile)
			r.Delete("/upload/delete-file/{category}/{fileId}", s.handleDeleteFile)
			r.Post("/upload/cleanup", s.handleCleanup)

			r.Post("/chat", s.handleChat)
			for _, name := range s.config.ProviderNames() {
				r.Post("/"+name+"/chat", s.handleProviderChat(name))
			}
		})
	})

	if dir := s.config.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			s.logger.Warn("Static directory not found, not serving client", zap.String("dir", dir))
		}
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// recoverJSON turns a panic into a JSON 500 so clients always get JSON back.
func (s *Server) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("Panic in handler",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Stack("stack"))
			body := map[string]string{"error": msgInternal}
			if s.config.Debug {
				body["message"] = panicMessage(rec)
			}
			s.respondJSON(w, http.StatusInternalServerError, body)
		}()
		next.ServeHTTP(w, r)
	})
}
