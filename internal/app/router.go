package app

import (
	"database/sql"
	"net/http"
	"time"

	"quizlms/internal/app/observability"
	"quizlms/internal/attempt"
	"quizlms/internal/auth"
	"quizlms/internal/content"
	"quizlms/internal/enrollment"
	"quizlms/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeaderName},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	verifier := auth.NewVerifier(cfg.AuthTokenSecret)

	attemptSvc := attempt.NewService(
		db,
		content.NewSQLReader(db),
		enrollment.NewSQLChecker(db),
		attempt.ServiceConfig{
			StartGrace:  time.Duration(cfg.StartGraceSecs) * time.Second,
			SubmitGrace: time.Duration(cfg.SubmitGraceSecs) * time.Second,
		},
	)
	attemptHandler := attempt.NewHandler(attemptSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	limiter := NewIPRateLimiter(cfg.APIRateLimitPerMin, time.Minute)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))
		api.Use(verifier.RequireAuth)

		api.Post("/attempts/start", attemptHandler.Start)
		api.Post("/attempts/{id}/submit", attemptHandler.Submit)
		api.Get("/attempts/{id}/result", attemptHandler.Result)
		api.Get("/quizzes/{id}/progress", attemptHandler.Progress)

		api.Group(func(staff chi.Router) {
			staff.Use(auth.RequireRoles(auth.RoleTeacher, auth.RoleAdmin))
			staff.Get("/quizzes/{id}/report", reportHandler.Summary)
			staff.Get("/quizzes/{id}/report/export", reportHandler.ExportExcel)
		})
	})

	return r
}
