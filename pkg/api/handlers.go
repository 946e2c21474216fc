package api

import (
	"net/http"
)

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// handleConfig returns the public feature flags the UI needs.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	storage := "none"

	switch {
	case s.presigner != nil:
		storage = "s3"
	case s.images != nil:
		storage = "local"
	}

	writeData(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"provider": s.identity.Name(),
		},
		"github": map[string]any{
			"enabled": s.repos != nil,
			"owner":   s.cfg.GitHub.Owner,
		},
		"images": map[string]any{
			"storage":   storage,
			"max_bytes": maxImageBytes,
		},
		"moderation": map[string]any{
			"actions": moderationEvents,
		},
	}, "")
}
