package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
)

type registerUserRequest struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type promoteRequest struct {
	Email string `json:"email"`
}

// handleGetUsers returns the user with ?uid=, or every user for admins
// when no uid is given. Non-admins may only read themselves.
func (s *server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	caller := userFromContext(r.Context())
	uid := strings.TrimSpace(r.URL.Query().Get("uid"))

	if uid == "" {
		if !caller.IsAdmin() {
			s.fail(w, r, invalid("uid is required"))

			return
		}

		users, err := s.store.ListUsers(r.Context())
		if err != nil {
			s.fail(w, r, fmt.Errorf("listing users: %w", err))

			return
		}

		writeData(w, http.StatusOK, users, "")

		return
	}

	if uid != caller.UID && !caller.IsAdmin() {
		s.fail(w, r, errForbidden)

		return
	}

	user, err := s.store.GetUserByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("user %w", errNotFound)
		}

		s.fail(w, r, err)

		return
	}

	writeData(w, http.StatusOK, user, "")
}

// handleRegisterUser creates a user directory entry with the user role.
// It answers 200 when the uid is already registered. Only admins may
// register a uid other than their own.
func (s *server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	caller := userFromContext(r.Context())

	var req registerUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	req.UID = strings.TrimSpace(req.UID)
	req.Email = store.NormalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.UID == "" || req.Email == "" || req.DisplayName == "" {
		s.fail(w, r, invalid("uid, email and displayName are required"))

		return
	}

	if req.UID != caller.UID && !caller.IsAdmin() {
		s.fail(w, r, fmt.Errorf("%w: uid does not match the authenticated user", errForbidden))

		return
	}

	existing, err := s.store.GetUserByUID(r.Context(), req.UID)
	if err == nil {
		writeData(w, http.StatusOK, existing, "User already exists")

		return
	}

	if !errors.Is(err, store.ErrNotFound) {
		s.fail(w, r, fmt.Errorf("getting user: %w", err))

		return
	}

	user := &store.User{
		UID:         req.UID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        store.RoleUser,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.fail(w, r, fmt.Errorf("creating user: %w", err))

		return
	}

	s.log.WithField("uid", user.UID).Info("User registered")

	writeData(w, http.StatusCreated, user, "User created successfully")
}

// handlePromoteAdmin grants the admin role. Admins may promote any
// registered email; otherwise only the bootstrap admin may promote
// themselves.
func (s *server) handlePromoteAdmin(w http.ResponseWriter, r *http.Request) {
	caller := userFromContext(r.Context())

	var req promoteRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, r, err)

			return
		}
	}

	email := store.NormalizeEmail(req.Email)
	if email == "" {
		email = s.cfg.Auth.BootstrapAdminEmail
	}

	if email == "" {
		s.fail(w, r, invalid("email is required"))

		return
	}

	if !caller.IsAdmin() && (!s.isBootstrapAdmin(caller.Email) || email != caller.Email) {
		s.fail(w, r, errForbidden)

		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("user %w: sign up first", errNotFound)
		}

		s.fail(w, r, err)

		return
	}

	if !user.IsAdmin() {
		if err := s.store.UpdateUserRole(r.Context(), user.ID, store.RoleAdmin); err != nil {
			s.fail(w, r, fmt.Errorf("updating role: %w", err))

			return
		}

		user.Role = store.RoleAdmin

		s.log.WithField("uid", user.UID).
			WithField("by", caller.UID).
			Info("User promoted to admin")
	}

	writeData(w, http.StatusOK, user, "User promoted to admin")
}
