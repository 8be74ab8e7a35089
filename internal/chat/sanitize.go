package chat

import (
	"strings"

	"go.uber.org/zap"
)

// clientSafePatterns maps provider error fragments to messages safe to show clients.
var clientSafePatterns = []struct {
	pattern string
	message string
}{
	{"rate limit", "rate limit exceeded"},
	{"quota", "quota exceeded"},
	{"insufficient", "quota exceeded"},
	{"timeout", "request timed out"},
	{"context deadline", "request timed out"},
	{"context canceled", "request cancelled"},
	{"invalid api", "authentication failed with provider"},
	{"unauthorized", "authentication failed with provider"},
	{"401", "authentication failed with provider"},
	{"forbidden", "access denied by provider"},
	{"not found", "model not found"},
}

// sanitizeForClient maps err to a client-safe message. The full error is logged.
func sanitizeForClient(logger *zap.Logger, provider string, err error) string {
	if err == nil {
		return ""
	}
	lower := strings.ToLower(err.Error())
	for _, p := range clientSafePatterns {
		if strings.Contains(lower, p.pattern) {
			logger.Debug("Sanitizing provider error",
				zap.String("provider", provider),
				zap.String("sanitized", p.message),
				zap.Error(err))
			return p.message
		}
	}
	logger.Error("Provider error", zap.String("provider", provider), zap.Error(err))
	return "provider temporarily unavailable"
}
