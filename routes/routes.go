// Package routes builds the HTTP router.
package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/docchat/app"
	"github.com/upb/docchat/handlers"
	"github.com/upb/docchat/internal/auth"
	"github.com/upb/docchat/utils"
)

// requestTimeout bounds ordinary requests. Uploads and streamed answers are
// bounded by the server write timeout instead.
const requestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Ollama, deps.Logger)
	authH := handlers.NewAuthHandler(deps.Accounts, deps.Logger)
	docs := handlers.NewDocumentHandler(deps.Documents, deps.Logger)
	chats := handlers.NewChatHandler(deps.Chats, deps.Logger)
	adminH := handlers.NewAdminHandler(deps.Admin, deps.Documents, deps.Logger)

	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.Timeout(requestTimeout)).Post("/register", authH.HandleRegister)
			r.With(middleware.Timeout(requestTimeout)).Post("/login", authH.HandleLogin)
			r.With(deps.AuthMiddleware.RequireAuth).Get("/me", authH.HandleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Route("/documents", func(r chi.Router) {
				r.Post("/upload", docs.HandleUpload)
				r.With(middleware.Timeout(requestTimeout)).Get("/", docs.HandleList)
				r.With(middleware.Timeout(requestTimeout)).Delete("/{documentID}", docs.HandleDelete)
			})

			r.Route("/chat", func(r chi.Router) {
				r.With(deps.RateLimiter.Limit).Post("/query", chats.HandleQuery)
				r.Group(func(r chi.Router) {
					r.Use(middleware.Timeout(requestTimeout))
					r.Get("/history", chats.HandleHistory)
					r.Get("/{chatID}/messages", chats.HandleMessages)
					r.Delete("/{chatID}", chats.HandleDelete)
				})
			})

			// Administration (require admin role)
			r.Route("/admin", func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(string(auth.RoleAdmin)))
				r.Use(middleware.Timeout(requestTimeout))
				r.Get("/users", adminH.HandleListUsers)
				r.Post("/users", adminH.HandleCreateUser)
				r.Patch("/users/{userID}", adminH.HandleUpdateUser)
				r.Put("/users/{userID}/password", adminH.HandleResetPassword)
				r.Delete("/users/{userID}", adminH.HandleDeleteUser)
				r.Get("/documents", adminH.HandleListDocuments)
				r.Delete("/documents/{documentID}", adminH.HandleDeleteDocument)
				r.Get("/stats", adminH.HandleStats)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, r, http.StatusNotFound, "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
