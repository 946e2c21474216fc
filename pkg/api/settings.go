package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
)

type visibilityPayload struct {
	Visibility map[string]bool `json:"visibility"`
}

// handleGetProjectSettings returns the repository visibility map. Absent
// repositories are visible.
func (s *server) handleGetProjectSettings(w http.ResponseWriter, r *http.Request) {
	visibility, err := s.store.GetProjectVisibility(r.Context(), store.DefaultSettingsOwner)
	if err != nil {
		s.fail(w, r, fmt.Errorf("getting project visibility: %w", err))

		return
	}

	writeData(w, http.StatusOK, visibilityPayload{Visibility: visibility}, "")
}

// handleSaveProjectSettings replaces the visibility map wholesale.
func (s *server) handleSaveProjectSettings(w http.ResponseWriter, r *http.Request) {
	var req visibilityPayload
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	if req.Visibility == nil {
		s.fail(w, r, invalid("visibility is required"))

		return
	}

	for key := range req.Visibility {
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			s.fail(w, r, invalid("visibility key %q is not a repository id", key))

			return
		}
	}

	if err := s.store.SaveProjectVisibility(
		r.Context(), store.DefaultSettingsOwner, req.Visibility,
	); err != nil {
		s.fail(w, r, fmt.Errorf("saving project visibility: %w", err))

		return
	}

	s.log.WithField("entries", len(req.Visibility)).Info("Project visibility saved")

	writeData(w, http.StatusOK, req, "")
}
