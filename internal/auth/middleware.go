package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Messages written by Middleware.
const (
	MsgTokenMissing = "缺少认证令牌"
	MsgTokenInvalid = "令牌无效或已过期"
)

type contextKey string

const studentIDContextKey contextKey = "auth_student_id"

// Middleware requires a valid bearer token. A missing token is answered with 401,
// an unknown or expired one with 403.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, MsgTokenMissing)
			return
		}
		studentID, err := s.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusForbidden, MsgTokenInvalid)
			return
		}
		ctx := context.WithValue(r.Context(), studentIDContextKey, studentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StudentIDFromContext returns the authenticated student set by Middleware.
func StudentIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(studentIDContextKey).(string)
	return id, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
