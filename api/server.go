/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Trace:      uuid trace id per request, echoed as X-Trace-Id
  2. RealIP:     Client address from proxy headers, trusted proxies only
                (for audit and rate limiting)
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /auth/login           Public, rate limited
  /healthz              Public
  /tasks/*              Any signed-in user (ownership checked per task)
  /meta/*               Any signed-in user
  /admin/*              Admin role only

SEE ALSO:
  - middleware.go: Trace, Authenticate, RequireAdmin
  - handlers.go:   Task and auth handlers
  - admin.go:      Admin handlers
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. Proxy headers
// are honoured only from peers in trustedProxies.
func NewRouter(h *Handler, allowedOrigins []string, trustedProxies []netip.Prefix) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(Trace)
	r.Use(RealIP(trustedProxies))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{TraceHeader, "Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Get("/{sno}", h.GetTask)
			r.Patch("/{sno}", h.UpdateTask)
			r.Delete("/{sno}", h.DeleteTask)
		})

		r.Route("/meta", func(r chi.Router) {
			r.Get("/subdivisions", h.ListSubDivisions)
			r.Get("/templates", h.ListTemplates)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/tasks", h.AdminListTasks)
			r.Get("/summary", h.Summary)
			r.Get("/export", h.Export)
			r.Get("/audit", h.ListAudit)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Patch("/{username}/status", h.SetUserStatus)
				r.Post("/{username}/reset-password", h.ResetPassword)
			})
		})
	})

	return r
}
