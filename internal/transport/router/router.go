package router

import (
	"github.com/akimov/audiopipe/internal/transport/handler"
	"github.com/go-chi/chi/v5"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/upload", h.UploadVideo)
		r.Get("/status/{fid}", h.JobStatus)
	})

	return r
}
