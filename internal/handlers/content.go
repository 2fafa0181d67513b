package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/types"
)

// ContentHandler serves the index, course, section, lecture and file tree.
type ContentHandler struct {
	content *services.ContentService
	log     *logger.Logger
}

// IndexRouter registers index routes.
func IndexRouter(r chi.Router, h *ContentHandler) {
	r.Get("/", h.ListIndexes)
	r.Post("/", h.CreateIndex)
	r.Get("/{indexID}", h.GetIndex)
	r.Patch("/{indexID}", h.UpdateIndex)
	r.Delete("/{indexID}", h.DeleteIndex)
}

// CourseRouter registers course routes.
func CourseRouter(r chi.Router, h *ContentHandler) {
	r.Get("/", h.ListCourses)
	r.Post("/", h.CreateCourse)
	r.Get("/{courseID}", h.GetCourse)
	r.Patch("/{courseID}", h.UpdateCourse)
	r.Delete("/{courseID}", h.DeleteCourse)
}

// SectionRouter registers section routes. PATCH and DELETE take the id from
// ?id= or, for PATCH, from the body.
func SectionRouter(r chi.Router, h *ContentHandler) {
	r.Post("/", h.CreateSection)
	r.Patch("/", h.UpdateSection)
	r.Delete("/", h.DeleteSection)
}

// LectureRouter registers lecture routes, addressed like sections.
func LectureRouter(r chi.Router, h *ContentHandler) {
	r.Post("/", h.CreateLecture)
	r.Patch("/", h.UpdateLecture)
	r.Delete("/", h.DeleteLecture)
}

// FileRouter registers lecture attachment routes.
func FileRouter(r chi.Router, h *ContentHandler) {
	r.Post("/", h.UploadFile)
	r.Delete("/", h.DeleteFile)
	r.Post("/download", h.DownloadFile)
}

func (h *ContentHandler) ListIndexes(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	indexes, err := h.content.ListIndexes(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"indexes": indexes})
}

func (h *ContentHandler) GetIndex(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.pathTarget(w, r, "indexID", "index id")
	if !ok {
		return
	}
	index, err := h.content.GetIndex(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"index": index})
}

func (h *ContentHandler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.IndexInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	index, err := h.content.CreateIndex(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"index": index})
}

func (h *ContentHandler) UpdateIndex(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.pathTarget(w, r, "indexID", "index id")
	if !ok {
		return
	}
	var patch services.IndexPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	index, err := h.content.UpdateIndex(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"index": index})
}

func (h *ContentHandler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.pathTarget(w, r, "indexID", "index id")
	if !ok {
		return
	}
	if err := h.content.DeleteIndex(r.Context(), actor, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// ListCourses returns the caller's courses, optionally under ?index_id=.
func (h *ContentHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	indexID, err := queryID(r, "index_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	courses, err := h.content.ListCourses(r.Context(), actor, indexID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"courses": courses})
}

// GetCourse returns the nested section, lecture and file tree.
func (h *ContentHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.pathTarget(w, r, "courseID", "course id")
	if !ok {
		return
	}
	course, err := h.content.GetCourse(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"course": course})
}

func (h *ContentHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.CourseInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	course, err := h.content.CreateCourse(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"course": course})
}

func (h *ContentHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.pathTarget(w, r, "courseID", "course id")
	if !ok {
		return
	}
	var patch services.CoursePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	course, err := h.content.UpdateCourse(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"course": course})
}

func (h *ContentHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.pathTarget(w, r, "courseID", "course id")
	if !ok {
		return
	}
	if err := h.content.DeleteCourse(r.Context(), actor, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ContentHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.SectionInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	section, err := h.content.CreateSection(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"section": section})
}

func (h *ContentHandler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req struct {
		ID int64 `json:"id"`
		services.SectionPatch
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := idFromQueryOrBody(r, req.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	section, err := h.content.UpdateSection(r.Context(), actor, id, req.SectionPatch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"section": section})
}

func (h *ContentHandler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.queryTarget(w, r)
	if !ok {
		return
	}
	if err := h.content.DeleteSection(r.Context(), actor, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *ContentHandler) CreateLecture(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req services.LectureInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	lecture, err := h.content.CreateLecture(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"lecture": lecture})
}

func (h *ContentHandler) UpdateLecture(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req struct {
		ID int64 `json:"id"`
		services.LecturePatch
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := idFromQueryOrBody(r, req.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	lecture, err := h.content.UpdateLecture(r.Context(), actor, id, req.LecturePatch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"lecture": lecture})
}

func (h *ContentHandler) DeleteLecture(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.queryTarget(w, r)
	if !ok {
		return
	}
	if err := h.content.DeleteLecture(r.Context(), actor, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// UploadFile attaches a multipart "file" to the lecture in field lecture_id.
func (h *ContentHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	upload, cleanup, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer cleanup()
	lectureID, err := parseID(r.FormValue("lecture_id"), "lecture_id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	file, err := h.content.UploadFile(r.Context(), actor, lectureID, upload)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"file": file})
}

func (h *ContentHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.queryTarget(w, r)
	if !ok {
		return
	}
	if err := h.content.DeleteFile(r.Context(), actor, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// DownloadFile answers {file_id} with a signed, expiring URL.
func (h *ContentHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req struct {
		FileID int64 `json:"file_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.FileID <= 0 {
		writeError(w, r, h.log, apperr.Validation("file_id is required"))
		return
	}
	link, err := h.content.DownloadFile(r.Context(), actor, req.FileID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"url":        link.URL,
		"file_name":  link.FileName,
		"expires_at": link.ExpiresAt,
	})
}

func (h *ContentHandler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	h.uploadMedia(w, r, h.content.UploadThumbnail)
}

func (h *ContentHandler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	h.uploadMedia(w, r, h.content.UploadVideo)
}

type mediaUploader func(ctx context.Context, actor types.User, upload services.Upload) (services.StoredObject, error)

func (h *ContentHandler) uploadMedia(w http.ResponseWriter, r *http.Request, save mediaUploader) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	upload, cleanup, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer cleanup()
	obj, err := save(r.Context(), actor, upload)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"path": obj.Path, "url": obj.URL})
}

// readUpload parses a multipart form and opens its "file" part.
func readUpload(w http.ResponseWriter, r *http.Request) (services.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return services.Upload{}, noop, apperr.Validation("multipart form is required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.Upload{}, noop, apperr.Validation("invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return services.Upload{}, noop, apperr.Validation("file is required")
	}
	cleanup := func() {
		_ = file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return services.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, cleanup, nil
}

func (h *ContentHandler) pathTarget(w http.ResponseWriter, r *http.Request, param, name string) (types.User, int64, bool) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return types.User{}, 0, false
	}
	id, err := urlID(r, param, name)
	if err != nil {
		writeError(w, r, h.log, err)
		return types.User{}, 0, false
	}
	return actor, id, true
}

func (h *ContentHandler) queryTarget(w http.ResponseWriter, r *http.Request) (types.User, int64, bool) {
	actor, err := currentUser(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return types.User{}, 0, false
	}
	id, err := requiredQueryID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return types.User{}, 0, false
	}
	return actor, id, true
}

// idFromQueryOrBody prefers ?id= and falls back to the body's "id".
func idFromQueryOrBody(r *http.Request, bodyID int64) (int64, error) {
	id, err := queryID(r, "id")
	if err != nil {
		return 0, err
	}
	if id != nil {
		return *id, nil
	}
	if bodyID <= 0 {
		return 0, apperr.Validation("id is required")
	}
	return bodyID, nil
}
