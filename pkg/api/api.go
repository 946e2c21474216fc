package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/config"
	"github.com/ethpandaops/portfolioor/pkg/github"
	"github.com/ethpandaops/portfolioor/pkg/identity"
	"github.com/ethpandaops/portfolioor/pkg/moderation"
	"github.com/ethpandaops/portfolioor/pkg/projects"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 15 * time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	identity   identity.Provider
	workflow   *moderation.Workflow
	repos      github.API
	presenter  *projects.Presenter
	presigner  *s3Presigner
	images     *localImageStore
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the store, wires the identity provider, moderation workflow,
// repository client and image storage, and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	if err := s.promoteBootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("promoting bootstrap admin: %w", err)
	}

	provider, err := identity.New(ctx, s.log, &s.cfg.Auth, s.store)
	if err != nil {
		return fmt.Errorf("initializing identity provider: %w", err)
	}

	s.identity = provider
	s.workflow = moderation.New(s.log, s.store)
	s.presenter = projects.NewPresenter(&s.cfg.Projects)

	if s.cfg.GitHub.Owner != "" {
		s.repos = github.NewCachedClient(
			s.log,
			github.NewClient(s.cfg.GitHub.APIURL, s.cfg.GitHub.Token),
			s.cfg.GitHub.CacheDuration(),
			s.cfg.GitHub.ProfileCacheDuration(),
		)
	} else {
		s.log.Warn("No GitHub owner configured, serving featured projects only")
	}

	if s.cfg.Storage.S3 != nil && s.cfg.Storage.S3.Enabled {
		s.presigner = newS3Presigner(s.log, s.cfg.Storage.S3)

		s.log.Info("S3 image storage enabled")
	}

	if s.cfg.Storage.Local != nil && s.cfg.Storage.Local.Enabled {
		images, err := newLocalImageStore(s.log, s.cfg.Storage.Local)
		if err != nil {
			return fmt.Errorf("initializing local image storage: %w", err)
		}

		s.images = images

		s.log.Info("Local image storage enabled")
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start session cleanup goroutine.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.store.DeleteExpiredSessions(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to clean expired sessions")
				}
			case <-s.done:
				return
			}
		}
	}()

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			WithField("identity_provider", s.identity.Name()).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// promoteBootstrapAdmin grants the admin role to an existing user whose
// email matches auth.bootstrap_admin_email. A user that signs up later is
// provisioned as admin directly.
func (s *server) promoteBootstrapAdmin(ctx context.Context) error {
	email := s.cfg.Auth.BootstrapAdminEmail
	if email == "" {
		return nil
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.WithField("email", email).
				Debug("Bootstrap admin has not signed up yet")

			return nil
		}

		return fmt.Errorf("getting user: %w", err)
	}

	if user.IsAdmin() {
		return nil
	}

	if err := s.store.UpdateUserRole(ctx, user.ID, store.RoleAdmin); err != nil {
		return fmt.Errorf("updating role: %w", err)
	}

	s.log.WithField("email", email).Info("Promoted bootstrap admin")

	return nil
}
