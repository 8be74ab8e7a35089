package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/studydesk/internal/auth"
	"github.com/hyperjump/studydesk/internal/library"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
)

const (
	msgLoginFailed      = "登录失败，请稍后重试"
	msgUserExists       = "用户已存在"
	msgUserNotFound     = "用户不存在"
	msgCreateUserFailed = "添加用户失败，请稍后重试"
	msgTutorNameMissing = "导师名称必填"
	msgTutorNotFound    = "导师不存在"
	msgTutorListFailed  = "获取导师列表失败"
	msgTutorSaveFailed  = "保存失败"
	msgTutorDelFailed   = "删除失败"
)

type loginRequest struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.auth.Login(r.Context(), req.StudentID, req.Password)
	var verr *auth.ValidationError
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user, "token": token})
	case errors.As(err, &verr):
		s.respondError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, auth.ErrUserUnavailable), errors.Is(err, auth.ErrWrongPassword):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	default:
		s.respondInternal(w, "login failed", msgLoginFailed, err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.BearerToken(r); token != "" {
		s.auth.Logout(token)
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUsersList(w http.ResponseWriter, r *http.Request) {
	users, meta, err := s.auth.ListUsers(r.Context())
	if err != nil {
		s.respondInternal(w, "list users failed", msgInternal, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"users": users, "metadata": meta})
}

func (s *Server) handleUsersCreate(w http.ResponseWriter, r *http.Request) {
	var in auth.NewUser
	if !s.decodeJSON(w, r, &in) {
		return
	}
	user, err := s.auth.CreateUser(r.Context(), in)
	var verr *auth.ValidationError
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
	case errors.As(err, &verr):
		s.respondError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, storage.ErrDuplicate):
		s.respondError(w, http.StatusBadRequest, msgUserExists)
	default:
		s.respondInternal(w, "create user failed", msgCreateUserFailed, err)
	}
}

func (s *Server) handleUsersUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.UserPatch
	if !s.decodeJSON(w, r, &patch) {
		return
	}
	user, err := s.auth.UpdateUser(r.Context(), chi.URLParam(r, "studentId"), patch)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, msgUserNotFound)
	default:
		s.respondInternal(w, "update user failed", msgInternal, err)
	}
}

func (s *Server) handleTutorsList(w http.ResponseWriter, r *http.Request) {
	tutors, err := s.tutors.List(r.Context())
	if err != nil {
		s.respondInternal(w, "list tutors failed", msgTutorListFailed, err)
		return
	}
	if tutors == nil {
		tutors = []models.Tutor{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tutors": tutors})
}

func (s *Server) handleTutorsCreate(w http.ResponseWriter, r *http.Request) {
	var patch models.TutorPatch
	if !s.decodeJSON(w, r, &patch) {
		return
	}
	tutor, err := s.tutors.Create(r.Context(), patch)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tutor": tutor})
	case errors.Is(err, library.ErrTutorNameRequired):
		s.respondError(w, http.StatusBadRequest, msgTutorNameMissing)
	default:
		s.respondInternal(w, "create tutor failed", msgTutorSaveFailed, err)
	}
}

func (s *Server) handleTutorsUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.TutorPatch
	if !s.decodeJSON(w, r, &patch) {
		return
	}
	tutor, err := s.tutors.Update(r.Context(), chi.URLParam(r, "id"), patch)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tutor": tutor})
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, msgTutorNotFound)
	default:
		s.respondInternal(w, "update tutor failed", msgTutorSaveFailed, err)
	}
}

func (s *Server) handleTutorsDelete(w http.ResponseWriter, r *http.Request) {
	err := s.tutors.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, msgTutorNotFound)
	default:
		s.respondInternal(w, "delete tutor failed", msgTutorDelFailed, err)
	}
}
