package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/services"
)

// Services bundles the use-cases the API exposes.
type Services struct {
	Auth        *services.AuthService
	Credentials *services.CredentialService
	Users       *services.UserService
	Content     *services.ContentService
	Assignments *services.AssignmentService
	Progress    *services.ProgressService
	Dashboard   *services.DashboardService
}

// API mounts every /api route on r.
func API(r chi.Router, svc Services, sessions *SessionManager, log *logger.Logger) {
	content := &ContentHandler{content: svc.Content, log: log}
	learning := &LearningHandler{
		assignments: svc.Assignments,
		progress:    svc.Progress,
		dashboard:   svc.Dashboard,
		log:         log,
	}

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, svc, sessions, log)
	})
	r.Route("/users", func(r chi.Router) {
		UserRouter(r, svc, sessions, log)
	})

	r.Group(func(r chi.Router) {
		r.Use(sessions.RequireAuth)

		r.Route("/indexes", func(r chi.Router) { IndexRouter(r, content) })
		r.Route("/courses", func(r chi.Router) { CourseRouter(r, content) })
		r.Route("/sections", func(r chi.Router) { SectionRouter(r, content) })
		r.Route("/lectures", func(r chi.Router) { LectureRouter(r, content) })
		r.Route("/files", func(r chi.Router) { FileRouter(r, content) })
		r.Post("/thumbnails", content.UploadThumbnail)
		r.Post("/videos", content.UploadVideo)

		r.Route("/assignments", func(r chi.Router) { AssignmentRouter(r, learning) })
		r.Route("/progress", func(r chi.Router) { ProgressRouter(r, learning) })
		r.Route("/dashboard", func(r chi.Router) { DashboardRouter(r, learning) })
	})
}
