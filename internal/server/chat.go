package server

import (
	"errors"
	"net/http"

	"github.com/hyperjump/studydesk/internal/chat"
	"go.uber.org/zap"
)

// handleChat routes to the provider named by the "model" field, falling back to
// the default provider. The provider's default model is used.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}
	provider := s.chat.Resolve(req.Model)
	req.Model = ""
	s.complete(w, r, provider, req)
}

// handleProviderChat serves /api/<provider>/chat, where "model" names the
// provider's model.
func (s *Server) handleProviderChat(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		if !s.decodeJSON(w, r, &req) {
			return
		}
		s.complete(w, r, provider, req)
	}
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request, provider string, req chat.Request) {
	s.logger.Debug("chat request",
		zap.String("provider", provider),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("file_context_bytes", len(req.FileContext)))

	resp, err := s.chat.Complete(r.Context(), provider, req)
	var missing *chat.MissingKeyError
	var perr *chat.ProviderError
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, resp)
	case errors.As(err, &missing):
		s.respondError(w, http.StatusUnauthorized, missing.Error())
	case errors.Is(err, chat.ErrNoMessages):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrUnknownProvider):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &perr):
		s.respondError(w, http.StatusBadGateway, perr.Message)
	default:
		s.respondInternal(w, "chat failed", msgInternal, err)
	}
}
