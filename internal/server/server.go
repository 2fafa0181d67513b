package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/db"
	"github.com/lumen-lms/apiserver/internal/handlers"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/mail"
	"github.com/lumen-lms/apiserver/internal/mq"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/internal/storage"
	"github.com/lumen-lms/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	broker     mq.Backend
	log        *logger.Logger
}

// New connects the backing services and mounts the API.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Session.Secret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if errors.Is(err, mq.ErrDisabled) {
		broker, err = nil, nil
	}
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}

	mailer, err := mail.New(cfg.Mail, broker, log)
	if err != nil {
		closeAll(dbConn, broker)
		return nil, err
	}

	svc := buildServices(cfg, dbConn, objects, mailer, log)
	sessions := handlers.NewSessionManager(svc.Auth, cfg.Session, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(log),
	)
	router.Get("/healthz", handlers.Healthz(dbConn, log))
	router.Route("/api", func(r chi.Router) {
		handlers.API(r, svc, sessions, log)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       10 * time.Minute, // large video uploads
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server configured",
		"port", port,
		"storage", cfg.Storage.Backend,
		"mq", cfg.MQ.Backend,
		"mail", cfg.Mail.Backend,
	)

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		broker:     broker,
		log:        log,
	}, nil
}

func buildServices(cfg config.Config, dbConn *sql.DB, objects storage.ObjectStorage, mailer mail.Sender, log *logger.Logger) handlers.Services {
	userRepo := store.NewUserRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	credentialRepo := store.NewCredentialRepository(dbConn)
	indexRepo := store.NewIndexRepository(dbConn)
	courseRepo := store.NewCourseRepository(dbConn)
	assignmentRepo := store.NewAssignmentRepository(dbConn)
	lectureRepo := store.NewLectureRepository(dbConn)
	progressRepo := store.NewProgressRepository(dbConn)

	activity := services.NewActivityService(store.NewActivityRepository(dbConn), log)
	auth := services.NewAuthService(userRepo, sessionRepo, activity, cfg.Session.TTL)
	creds := services.NewCredentialService(userRepo, credentialRepo, sessionRepo, mailer, activity, cfg.Tokens, cfg.AppURL, log)
	assignments := services.NewAssignmentService(assignmentRepo, userRepo, indexRepo, courseRepo, activity)
	content := services.NewContentService(
		indexRepo,
		courseRepo,
		store.NewSectionRepository(dbConn),
		lectureRepo,
		store.NewFileRepository(dbConn),
		progressRepo,
		assignments,
		objects,
		cfg.Storage.SignedURLTTL,
		activity,
		log,
	)
	users := services.NewUserService(userRepo, sessionRepo, creds, content, activity, log)
	progress := services.NewProgressService(progressRepo, lectureRepo, indexRepo, userRepo, content, assignments, activity)
	dashboard := services.NewDashboardService(userRepo, sessionRepo, indexRepo, courseRepo, assignmentRepo,
		activity, progress, cfg.Session.TTL, cfg.Location())

	return handlers.Services{
		Auth:        auth,
		Credentials: creds,
		Users:       users,
		Content:     content,
		Assignments: assignments,
		Progress:    progress,
		Dashboard:   dashboard,
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the database and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	closeAll(s.db, s.broker)
	return err
}

func closeAll(dbConn *sql.DB, broker mq.Backend) {
	if broker != nil {
		_ = broker.Close()
	}
	if dbConn != nil {
		_ = dbConn.Close()
	}
}
