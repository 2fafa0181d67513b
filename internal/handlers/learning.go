package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/types"
)

// LearningHandler serves assignments, progress and dashboards.
type LearningHandler struct {
	assignments *services.AssignmentService
	progress    *services.ProgressService
	dashboard   *services.DashboardService
	log         *logger.Logger
}

func AssignmentRouter(r chi.Router, h *LearningHandler) {
	r.Get("/", h.ListAssignments)
	r.Post("/", h.Assign)
	r.Delete("/", h.Unassign)
}

func ProgressRouter(r chi.Router, h *LearningHandler) {
	r.Get("/", h.Report)
	r.Post("/", h.Record)
}

func DashboardRouter(r chi.Router, h *LearningHandler) {
	r.Get("/{role}", h.Dashboard)
}

// ListAssignments returns the grants of ?user_id=, or the caller's own.
func (h *LearningHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	userID, err := queryID(r, "user_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	listing, err := h.assignments.List(r.Context(), actor, userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"assignments": listing})
}

func (h *LearningHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.AssignInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	result, err := h.assignments.Assign(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"assignment": result})
}

// Unassign reads the target from the body, or from ?user_id= with
// ?course_id= or ?index_id= when the body is empty.
func (h *LearningHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	req, err := unassignInput(w, r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.assignments.Unassign(r.Context(), actor, req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func unassignInput(w http.ResponseWriter, r *http.Request) (services.AssignInput, error) {
	if r.URL.Query().Get("user_id") == "" {
		var req services.AssignInput
		err := decodeJSON(w, r, &req)
		return req, err
	}
	userID, err := requiredQueryID(r, "user_id")
	if err != nil {
		return services.AssignInput{}, err
	}
	courseID, err := queryID(r, "course_id")
	if err != nil {
		return services.AssignInput{}, err
	}
	indexID, err := queryID(r, "index_id")
	if err != nil {
		return services.AssignInput{}, err
	}
	return services.AssignInput{UserID: userID, CourseID: courseID, IndexID: indexID}, nil
}

// Report returns rollups for ?user_id= (default: caller), optionally narrowed
// to ?course_id=.
func (h *LearningHandler) Report(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	userID, err := queryID(r, "user_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	courseID, err := queryID(r, "course_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	report, err := h.progress.Report(r.Context(), actor, services.ReportInput{UserID: userID, CourseID: courseID})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"progress": report})
}

func (h *LearningHandler) Record(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.ProgressInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	row, err := h.progress.Record(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"progress": row})
}

// Dashboard serves /dashboard/{admin|trainer|crm|learner}.
func (h *LearningHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var payload any
	switch chi.URLParam(r, "role") {
	case "admin":
		payload, err = h.dashboard.Admin(r.Context(), actor)
	case "trainer":
		payload, err = h.dashboard.Author(r.Context(), actor, types.RoleTrainer)
	case "crm":
		payload, err = h.dashboard.Author(r.Context(), actor, types.RoleCRM)
	case "learner":
		payload, err = h.dashboard.Learner(r.Context(), actor)
	default:
		err = apperr.NotFound("dashboard not found")
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"dashboard": payload})
}
