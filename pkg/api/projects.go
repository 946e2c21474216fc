package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/github"
)

// handleListProjects returns the visible repositories of the configured
// owner, enriched for display. When the repository API fails the
// configured featured projects are served instead. Admins may pass
// ?all=true to include hidden repositories with their visibility flag.
func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	if all {
		user := userFromContext(r.Context())
		if user == nil {
			s.fail(w, r, errUnauthenticated)

			return
		}

		if !user.IsAdmin() {
			s.fail(w, r, errForbidden)

			return
		}
	}

	if s.repos == nil {
		writeData(w, http.StatusOK, s.presenter.Featured(), "")

		return
	}

	repos, err := s.repos.ListRepos(r.Context(), s.cfg.GitHub.Owner)
	if err != nil {
		if all {
			s.fail(w, r, err)

			return
		}

		s.log.WithError(err).Warn("Falling back to featured projects")
		writeData(w, http.StatusOK, s.presenter.Featured(), "Showing featured projects")

		return
	}

	visibility, err := s.store.GetProjectVisibility(r.Context(), store.DefaultSettingsOwner)
	if err != nil {
		s.fail(w, r, fmt.Errorf("getting project visibility: %w", err))

		return
	}

	if all {
		writeData(w, http.StatusOK, s.presenter.PresentAll(repos, visibility), "")

		return
	}

	writeData(w, http.StatusOK, s.presenter.PresentVisible(repos, visibility), "")
}

type statsResponse struct {
	Profile *github.User `json:"profile"`
	Stats   github.Stats `json:"stats"`
}

// handleProjectStats returns the owner's profile together with totals
// computed over all of their repositories. A failed upstream call leaves
// its half empty (nil profile, zero stats) rather than failing the page.
func (s *server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	if s.repos == nil {
		s.fail(w, r, fmt.Errorf("github %w", errUnavailable))

		return
	}

	var (
		g       errgroup.Group
		profile *github.User
		repos   []github.Repo
		failed  atomic.Bool
	)

	g.Go(func() error {
		user, err := s.repos.GetUser(r.Context(), s.cfg.GitHub.Owner)
		if err != nil {
			s.log.WithError(err).Warn("Failed to fetch github profile")
			failed.Store(true)

			return nil
		}

		profile = user

		return nil
	})

	g.Go(func() error {
		list, err := s.repos.ListRepos(r.Context(), s.cfg.GitHub.Owner)
		if err != nil {
			s.log.WithError(err).Warn("Failed to fetch github repositories")
			failed.Store(true)

			return nil
		}

		repos = list

		return nil
	})

	_ = g.Wait()

	var message string
	if failed.Load() {
		message = "GitHub data is temporarily unavailable"
	}

	writeData(w, http.StatusOK, statsResponse{
		Profile: profile,
		Stats:   github.ComputeStats(repos),
	}, message)
}
