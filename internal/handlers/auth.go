package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/services"
)

var errBadRequest = errors.New("bad request")

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func decodeCredentials(r *http.Request) (credentialsRequest, error) {
	defer r.Body.Close()
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return req, nil
}

// Register POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.auth.Register(r.Context(), req.Email, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Login POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	identity, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		UserID:    identity.UserID,
		Token:     identity.Credential,
		ExpiresAt: identity.ExpiresAt,
	})
}

// Logout POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	auth, ok := getAuth(r.Context())
	if !ok {
		h.writeError(w, r, services.ErrInvalidToken)
		return
	}

	if err := h.auth.SignOut(r.Context(), auth.token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll POST /auth/logout-all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	auth, ok := getAuth(r.Context())
	if !ok {
		h.writeError(w, r, services.ErrInvalidToken)
		return
	}

	if err := h.auth.SignOutAll(r.Context(), auth.token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword POST /auth/password keeps the caller signed in and revokes
// the account's other credentials.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	auth, ok := getAuth(r.Context())
	if !ok {
		h.writeError(w, r, services.ErrInvalidToken)
		return
	}

	defer r.Body.Close()
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), auth.token, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount DELETE /auth/account
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	auth, ok := getAuth(r.Context())
	if !ok {
		h.writeError(w, r, services.ErrInvalidToken)
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), auth.token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CurrentSession GET /sessions/current returns the caller's session record,
// naming the one device currently allowed to be signed in.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	auth, ok := getAuth(r.Context())
	if !ok {
		h.writeError(w, r, services.ErrInvalidToken)
		return
	}

	record, err := h.records.Get(r.Context(), auth.claims.AccountID.String())
	if errors.Is(err, repositories.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no active session"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}
