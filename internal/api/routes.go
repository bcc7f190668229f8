package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mount registers the public and admin routes on r. userAuth guards /v1 and
// adminAuth guards /admin/api.
func (s *Server) Mount(r chi.Router, userAuth, adminAuth func(http.Handler) http.Handler) {
	r.Get("/health", s.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(userAuth)
		r.Post("/chat", s.Chat)
		r.Post("/chat/completions", s.ChatCompletions)
	})

	r.Route("/admin/api", func(r chi.Router) {
		r.Use(adminAuth)
		r.Get("/system", s.AdminGetSystem)
		r.Put("/system", s.AdminUpdateSystem)
		r.Get("/users", s.AdminListUsers)
		r.Post("/users", s.AdminCreateUser)
		r.Put("/users/{userId}", s.AdminUpdateUser)
		r.Delete("/users/{userId}", s.AdminDeleteUser)
		r.Post("/users/{userId}/regenerate-token", s.AdminRegenerateToken)
		r.Get("/usage", s.AdminUsage)
		r.Get("/logs", s.AdminLogs)
		r.Post("/reset", s.AdminReset)
		r.Get("/providers", s.AdminProviderHealth)
	})
}
