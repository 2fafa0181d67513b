package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/services"
)

// AuthHandler serves login sessions, password changes and the invite and
// reset flows.
type AuthHandler struct {
	auth     *services.AuthService
	creds    *services.CredentialService
	sessions *SessionManager
	log      *logger.Logger
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, svc Services, sessions *SessionManager, log *logger.Logger) {
	h := &AuthHandler{auth: svc.Auth, creds: svc.Credentials, sessions: sessions, log: log}

	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/forgot", h.Forgot)
	r.Post("/reset", h.Reset)
	r.Get("/invite", h.VerifyInvite)
	r.Post("/invite/accept", h.AcceptInvite)

	r.Group(func(r chi.Router) {
		r.Use(sessions.RequireAuth)
		r.Get("/me", h.Me)
		r.Post("/password", h.ChangePassword)
		r.Post("/invite", h.ResendInvite)
	})
}

// Login verifies credentials, opens a session and sets the cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	result, err := h.auth.Login(r.Context(), req, clientIP(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.sessions.issue(w, result.Session); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": result.User, "redirect": result.Redirect})
}

// Logout closes the session named by the cookie, if any, and always clears it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, userID, err := h.sessions.read(r); err == nil {
		if err := h.auth.Logout(r.Context(), sessionID, userID); err != nil {
			h.log.Warn("logout failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		}
	}
	h.sessions.clear(w)
	writeJSON(w, http.StatusOK, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.ChangePasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), user.ID, req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Forgot issues a reset code. The answer never reveals whether the address
// belongs to an account.
func (h *AuthHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req services.ForgotPasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.creds.ForgotPassword(r.Context(), req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "If the email exists, a reset code has been sent"})
}

func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.creds.ResetPassword(r.Context(), req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// VerifyInvite answers whether ?token= is usable and for which account.
func (h *AuthHandler) VerifyInvite(w http.ResponseWriter, r *http.Request) {
	user, err := h.creds.VerifyInvite(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user})
}

// ResendInvite re-issues the invite for {user_id}.
func (h *AuthHandler) ResendInvite(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.UserID <= 0 {
		writeError(w, r, h.log, apperr.Validation("user_id is required"))
		return
	}
	invite, err := h.creds.ResendInvite(r.Context(), actor, req.UserID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"invite": invite})
}

func (h *AuthHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req services.AcceptInviteInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	user, err := h.creds.AcceptInvite(r.Context(), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user})
}

// clientIP strips the port that RealIP leaves in RemoteAddr when no proxy
// header was present.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
