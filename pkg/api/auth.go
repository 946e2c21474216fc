package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/identity"
)

const sessionTokenBytes = 32

// generateSessionToken creates a cryptographically random session token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse carries the user and the provider's ID token, which
// clients may send as a Bearer token instead of relying on the cookie.
type authResponse struct {
	User    *store.User `json:"user"`
	IDToken string      `json:"idToken"`
}

// handleSignUp registers a new account with the identity provider and
// signs it in.
func (s *server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	principal, err := s.identity.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	s.completeSignIn(w, r, principal, http.StatusCreated, "Account created")
}

// handleSignIn authenticates an email/password pair and creates a session.
func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	principal, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	s.completeSignIn(w, r, principal, http.StatusOK, "Signed in")
}

func (s *server) completeSignIn(
	w http.ResponseWriter,
	r *http.Request,
	principal *identity.Principal,
	status int,
	message string,
) {
	user, err := s.provisionUser(r.Context(), principal)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.fail(w, r, err)

		return
	}

	ttl := s.cfg.Auth.SessionDuration()

	session := &store.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.fail(w, r, fmt.Errorf("creating session: %w", err))

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(ttl.Seconds()),
	})

	writeData(w, status, authResponse{User: user, IDToken: principal.Token}, message)
}

// handleSignOut destroys the current session.
func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		_ = s.store.DeleteSession(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeData(w, http.StatusOK, nil, "Signed out")
}

// handleMe returns the currently authenticated user.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, userFromContext(r.Context()), "")
}
