package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/schoolhub/internal/api/handlers"
	"github.com/hugh/schoolhub/internal/api/middleware"
	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB                *gorm.DB
	Redis             *redis.Client
	Inspector         handlers.QueueInspector
	Logger            *slog.Logger
	Metrics           *middleware.Metrics
	JWTService        *auth.JWTService
	AuthService       *auth.Service
	AllowedOrigins    []string // CORS allowed origins
	RateLimitReqs     int      // Rate limit requests per window
	RateLimitSecs     int      // Rate limit window in seconds
	AuthRateLimitReqs int      // Stricter limit for login, signup and password reset requests
	UserRateLimitReqs int      // Per-principal limit on authenticated routes
	CookieMaxAge      int      // jwt cookie lifetime in seconds
	Development       bool     // Adds error detail to 5xx responses
}

// access lists the roles allowed per kind of operation. An empty list lets
// any authenticated principal through.
type access struct {
	read, create, write []models.Role
}

var (
	adminOnly     = []models.Role{models.RoleAdmin}
	staff         = []models.Role{models.RoleAdmin, models.RoleTeacher}
	adminAccess   = access{read: adminOnly, create: adminOnly, write: adminOnly}
	staffAccess   = access{read: staff, create: staff, write: staff}
	classAccess   = access{create: adminOnly, write: adminOnly}
	sessionAccess = access{write: adminOnly}
)

func allow(roles []models.Role) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RequireRole(roles...)
}

// crud mounts the five resource routes with their role gates.
func crud[T any](r chi.Router, h *handlers.ResourceHandler[T], a access) {
	r.With(allow(a.read)).Get("/", h.List)
	r.With(allow(a.create)).Post("/", h.Create)
	r.With(allow(a.read)).Get("/{id}", h.Get)
	r.With(allow(a.write)).Put("/{id}", h.Update)
	r.With(allow(a.write)).Patch("/{id}", h.Update)
	r.With(allow(a.write)).Delete("/{id}", h.Delete)
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(respond.Detailed(cfg.Development))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.Recovery(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Repositories
	schools := repository.Schools()
	schools.AfterCreate = handlers.LinkSchoolToCaller
	attendanceRepo := repository.MustNew[models.Attendance, *models.Attendance](cfg.DB, repository.Attendance())

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Inspector)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.CookieMaxAge)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceRepo)
	studentAttendance := handlers.NewStudentAttendanceHandler(cfg.DB)

	userHandler := handlers.NewResourceHandler[models.User](repository.MustNew[models.User, *models.User](cfg.DB, repository.Users()))
	adminHandler := handlers.NewResourceHandler[models.Admin](repository.MustNew[models.Admin, *models.Admin](cfg.DB, repository.Admins()))
	teacherHandler := handlers.NewResourceHandler[models.Teacher](repository.MustNew[models.Teacher, *models.Teacher](cfg.DB, repository.Teachers()))
	studentHandler := handlers.NewResourceHandler[models.Student](repository.MustNew[models.Student, *models.Student](cfg.DB, repository.Students()))
	schoolHandler := handlers.NewResourceHandler[models.School](repository.MustNew[models.School, *models.School](cfg.DB, schools))
	schoolAdminHandler := handlers.NewResourceHandler[models.SchoolAdmin](repository.MustNew[models.SchoolAdmin, *models.SchoolAdmin](cfg.DB, repository.SchoolAdmins()))
	classHandler := handlers.NewResourceHandler[models.Class](repository.MustNew[models.Class, *models.Class](cfg.DB, repository.Classes()))
	sessionHandler := handlers.NewResourceHandler[models.Session](repository.MustNew[models.Session, *models.Session](cfg.DB, repository.Sessions()))
	subjectHandler := handlers.NewResourceHandler[models.Subject](repository.MustNew[models.Subject, *models.Subject](cfg.DB, repository.Subjects()))
	periodHandler := handlers.NewResourceHandler[models.Period](repository.MustNew[models.Period, *models.Period](cfg.DB, repository.Periods()))
	dayHandler := handlers.NewResourceHandler[models.Day](repository.MustNew[models.Day, *models.Day](cfg.DB, repository.Days()))
	statusHandler := handlers.NewResourceHandler[models.Status](repository.MustNew[models.Status, *models.Status](cfg.DB, repository.Statuses()))
	infoHandler := handlers.NewResourceHandler[models.Info](repository.MustNew[models.Info, *models.Info](cfg.DB, repository.Infos()))
	attendanceResource := handlers.NewResourceHandler[models.Attendance](attendanceRepo)

	protect := middleware.Protect(cfg.JWTService, cfg.AuthService)

	// Clients behind one school network share an IP, so authenticated
	// traffic is also limited per principal.
	userLimit := func(next http.Handler) http.Handler { return next }
	if cfg.UserRateLimitReqs > 0 {
		userLimit = middleware.RateLimitByUser(cfg.UserRateLimitReqs, cfg.RateLimitSecs)
	}

	authLimit := func(next http.Handler) http.Handler { return next }
	if cfg.AuthRateLimitReqs > 0 {
		authLimit = middleware.RateLimit(cfg.AuthRateLimitReqs, cfg.RateLimitSecs)
	}

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			// Public account endpoints
			r.With(authLimit).Post("/signup", authHandler.Signup)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.With(authLimit).Post("/forgotPassword", authHandler.ForgotPassword)
			r.Get("/verifyEmail/{nonce}", authHandler.VerifyEmail)
			r.Patch("/resetPassword/{token}", authHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(protect)
				r.Use(userLimit)
				r.Use(middleware.RequireVerifiedEmail)

				r.Get("/me", authHandler.Me)
				r.Patch("/updateMe", authHandler.UpdateMe)
				r.Delete("/deleteMe", authHandler.DeleteMe)
				r.Patch("/updatePassword", authHandler.UpdatePassword)
				r.Post("/logout", authHandler.Logout)

				r.With(allow(staff)).Post("/signup/student", authHandler.SignupStudent)

				r.Group(func(r chi.Router) {
					r.Use(allow(adminOnly))
					r.Post("/signup/teacher", authHandler.SignupTeacher)
					r.Get("/", userHandler.List)
					r.Get("/{id}", userHandler.Get)
					r.Put("/{id}", userHandler.Update)
					r.Patch("/{id}", userHandler.Update)
					r.Delete("/{id}", userHandler.Delete)
				})
			})
		})

		// Protected resources
		r.Group(func(r chi.Router) {
			r.Use(protect)
			r.Use(userLimit)

			r.Route("/admins", func(r chi.Router) { crud(r, adminHandler, adminAccess) })
			r.Route("/teachers", func(r chi.Router) { crud(r, teacherHandler, adminAccess) })
			r.Route("/schools", func(r chi.Router) { crud(r, schoolHandler, adminAccess) })
			r.Route("/school-admins", func(r chi.Router) { crud(r, schoolAdminHandler, adminAccess) })
			r.Route("/subjects", func(r chi.Router) { crud(r, subjectHandler, adminAccess) })
			r.Route("/periods", func(r chi.Router) { crud(r, periodHandler, adminAccess) })
			r.Route("/days", func(r chi.Router) { crud(r, dayHandler, adminAccess) })
			r.Route("/info", func(r chi.Router) { crud(r, infoHandler, adminAccess) })
			r.Route("/status", func(r chi.Router) { crud(r, statusHandler, staffAccess) })
			r.Route("/sessions", func(r chi.Router) { crud(r, sessionHandler, sessionAccess) })

			r.Route("/students", func(r chi.Router) {
				crud(r, studentHandler, staffAccess)
				r.With(allow(staff)).Get("/{id}/attendance", attendanceResource.ListBy("id", "student_id"))
			})

			r.Route("/classes", func(r chi.Router) {
				crud(r, classHandler, classAccess)
				r.With(allow(staff)).Get("/{id}/students", studentHandler.ListBy("id", "class_id"))
			})

			r.Route("/attendance", func(r chi.Router) {
				r.With(allow(staff)).Get("/export", attendanceHandler.Export)
				r.With(allow(staff)).Get("/students", studentAttendance.List)
				r.With(allow(staff)).Put("/students/{id}", studentAttendance.Update)
				crud(r, attendanceResource, staffAccess)
			})
		})
	})

	return &Router{r}
}
