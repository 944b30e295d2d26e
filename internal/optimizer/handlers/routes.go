package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimizer routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Get("/funds", h.HandleListFunds)

		r.Route("/results", func(r chi.Router) {
			r.Get("/", h.HandleListResults)
			r.Get("/latest", h.HandleLatestResult)
			r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
				id := chi.URLParam(req, "id")
				h.HandleGetResult(w, req, id)
			})
		})
	})
}
