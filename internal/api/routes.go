package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes configura e retorna o roteador Chi
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middlewares globais
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300, // Tempo de cache da preflight
	}))

	// Rotas da API V1
	r.Route("/v1", func(r chi.Router) {
		// Abertura de sessão: único endpoint sem X-User-ID
		r.Post("/session", h.handleCreateSession)

		// Fluxo do requerente, identificado pelo X-User-ID
		r.Route("/flow", func(r chi.Router) {
			r.Use(h.MachineMiddleware)

			r.Get("/", h.handleGetFlow)
			r.Get("/events", h.handleFlowEvents)
			r.Put("/draft", h.handleUpdateDraft)
			r.Post("/documents", h.handleAttachDocument)
			r.Delete("/documents/{slot}", h.handleRemoveDocument)
			r.Post("/advance", h.handleAdvance)
			r.Post("/retreat", h.handleRetreat)
			r.Post("/submit", h.handleSubmit)
			r.Post("/admin-login", h.handleAdminEnter)
			r.Delete("/admin-login", h.handleAdminLeave)
		})

		// Login e logout do administrador acompanham a máquina do
		// dispositivo: o estado da tela muda junto com a autenticação
		r.Group(func(r chi.Router) {
			r.Use(h.MachineMiddleware)
			r.Post("/admin/login", h.handleAdminLogin)
			r.Post("/admin/logout", h.handleAdminLogout)
		})

		// Painel protegido pelo token
		r.Route("/admin/submissions", func(r chi.Router) {
			r.Use(h.AdminAuthMiddleware)

			r.Get("/", h.handleListSubmissions)
			r.Get("/events", h.handleAdminEvents)
			r.Post("/{id}/approve", h.handleApprove)
			r.Post("/{id}/reject", h.handleReject)
		})
	})

	return r
}
