package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/identity"
)

type contextKey string

const userContextKey contextKey = "user"

const sessionCookieName = "portfolioor_session"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("status", ww.Status()).
			WithField("duration", time.Since(start)).
			WithField("request_id", chimw.GetReqID(r.Context())).
			Debug("Request handled")
	})
}

// requireAuth checks for a Bearer ID token or session cookie and injects
// the user into the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			s.fail(w, r, err)

			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuth identifies the caller when credentials are present and
// otherwise serves the request anonymously.
func (s *server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				s.log.WithError(err).Warn("Optional authentication failed")
			}

			next.ServeHTTP(w, r)

			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the caller from a Bearer ID token, falling back to
// the session cookie. The user record is always read from the store so
// role changes take effect on the next request.
func (s *server) authenticate(r *http.Request) (*store.User, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		principal, err := s.identity.Verify(r.Context(), authHeader[7:])
		if err != nil {
			return nil, err
		}

		return s.provisionUser(r.Context(), principal)
	}

	return s.authenticateSession(r)
}

// authenticateSession validates the session cookie.
func (s *server) authenticateSession(r *http.Request) (*store.User, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, errUnauthenticated
	}

	session, err := s.store.GetSessionByToken(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired session", errUnauthenticated)
		}

		return nil, fmt.Errorf("getting session: %w", err)
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		_ = s.store.DeleteSession(r.Context(), cookie.Value)

		return nil, fmt.Errorf("%w: session expired", errUnauthenticated)
	}

	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", errUnauthenticated)
		}

		return nil, fmt.Errorf("getting user: %w", err)
	}

	if session.LastActiveAt == nil ||
		time.Since(*session.LastActiveAt) > 5*time.Minute {
		go func() {
			if err := s.store.UpdateSessionLastActive(
				context.Background(), session.ID, time.Now().UTC(),
			); err != nil {
				s.log.WithError(err).
					Warn("Failed to update session last active")
			}
		}()
	}

	return user, nil
}

// provisionUser returns the user record for an authenticated principal,
// creating it on first sign-in. The bootstrap admin email is provisioned
// with the admin role.
func (s *server) provisionUser(
	ctx context.Context, p *identity.Principal,
) (*store.User, error) {
	user, err := s.store.GetUserByUID(ctx, p.UID)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	email := store.NormalizeEmail(p.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: token carries no email", errUnauthenticated)
	}

	displayName := p.DisplayName
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	role := store.RoleUser
	if s.isBootstrapAdmin(email) {
		role = store.RoleAdmin
	}

	user = &store.User{
		UID:         p.UID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("creating user: %w", err)
		}

		// Lost a race with a concurrent first request for the same uid.
		existing, getErr := s.store.GetUserByUID(ctx, p.UID)
		if getErr != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}

		return existing, nil
	}

	s.log.WithField("uid", user.UID).
		WithField("role", user.Role).
		Info("Provisioned user")

	return user, nil
}

func (s *server) isBootstrapAdmin(email string) bool {
	bootstrap := s.cfg.Auth.BootstrapAdminEmail

	return bootstrap != "" && store.NormalizeEmail(email) == bootstrap
}

// requireRole checks that the authenticated user has the specified role.
func (s *server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil || user.Role != role {
				writeError(w, http.StatusForbidden, errForbidden.Error())

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// userFromContext extracts the authenticated user from the request context.
func userFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey).(*store.User)

	return user
}

// resolveUID checks a uid supplied in a request against the caller. An
// empty uid means the caller.
func resolveUID(caller *store.User, uid string) (string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return caller.UID, nil
	}

	if uid != caller.UID {
		return "", fmt.Errorf("%w: uid does not match the authenticated user", errForbidden)
	}

	return uid, nil
}
