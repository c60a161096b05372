package schema

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the schema registry routes.
func NewRouter(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Post("/", createRevisionHandler(store))
	r.Get("/", listRevisionsHandler(store))

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", getRevisionHandler(store))
		r.Put("/", overwriteRevisionHandler(store))
		r.Delete("/", deleteRevisionHandler(store))
	})

	return r
}
