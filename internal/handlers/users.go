package handlers

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// UserHandler provides account management endpoints.
type UserHandler struct {
	users *services.UserService
	log   *logger.Logger
}

// UserRouter registers user routes. Every route requires a session.
func UserRouter(r chi.Router, svc Services, sessions *SessionManager, log *logger.Logger) {
	h := &UserHandler{users: svc.Users, log: log}

	r.Use(sessions.RequireAuth)
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/bulk", h.BulkCreate)
	r.Get("/{userID}", h.Get)
	r.Patch("/{userID}", h.Update)
	r.Delete("/{userID}", h.Delete)
}

// List returns the accounts the caller manages, filtered by ?role=, ?search=
// and ?active=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	q := r.URL.Query()
	users, err := h.users.List(r.Context(), actor, services.ListUsersInput{
		Role:   strings.TrimSpace(q.Get("role")),
		Search: strings.TrimSpace(q.Get("search")),
		Active: active,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"users": users})
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.CreateUserInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	result, err := h.users.Create(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"user":         result.User,
		"invite_sent":  result.InviteSent,
		"invite_error": result.InviteError,
	})
}

// BulkCreate imports accounts from a JSON {users:[...]} body or from a
// multipart "file" holding CSV or XLSX.
func (h *UserHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var rows []services.BulkUserRow
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		rows, err = parseBulkUpload(w, r)
	} else {
		var req struct {
			Users []services.BulkUserRow `json:"users"`
		}
		err = decodeJSON(w, r, &req)
		rows = req.Users
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	results, err := h.users.BulkCreate(r.Context(), actor, rows)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	created := 0
	for _, res := range results {
		if res.Success {
			created++
		}
	}
	writeJSON(w, http.StatusOK, envelope{
		"results": results,
		"created": created,
		"failed":  len(results) - created,
	})
}

func parseBulkUpload(w http.ResponseWriter, r *http.Request) ([]services.BulkUserRow, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		return nil, apperr.Validation("invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apperr.Validation("file is required")
	}
	defer file.Close()

	if isXLSX(header) {
		return services.ParseBulkXLSX(file)
	}
	return services.ParseBulkCSV(file)
}

func isXLSX(header *multipart.FileHeader) bool {
	if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		return true
	}
	return header.Header.Get("Content-Type") == xlsxContentType
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user})
}

// Update edits profile fields, toggles is_active or reassigns created_by.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var patch types.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	user, err := h.users.Update(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"user": user})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *UserHandler) target(w http.ResponseWriter, r *http.Request) (types.User, int64, bool) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return types.User{}, 0, false
	}
	id, err := urlID(r, "userID", "user id")
	if err != nil {
		writeError(w, r, h.log, err)
		return types.User{}, 0, false
	}
	return actor, id, true
}
