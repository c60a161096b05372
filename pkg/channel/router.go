package channel

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the channel lifecycle, draft and
// freeze, and deployment routes.
func NewRouter(store *Store, deployer *Deployer) chi.Router {
	r := chi.NewRouter()

	r.Route("/channels", func(r chi.Router) {
		r.Post("/", createChannelHandler(store))
		r.Get("/", listChannelsHandler(store))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getChannelHandler(store))
			r.Delete("/", deleteChannelHandler(store))
			r.Post("/reset", resetChannelHandler(store))
			r.Post("/pull-staging", pullStagingHandler(store))

			r.Route("/drafts/{template}", func(r chi.Router) {
				r.Get("/", getDraftHandler(store))
				r.Put("/", upsertDraftHandler(store))
				r.Post("/freeze", freezeHandler(store))
			})

			r.Get("/versions", listVersionsHandler(store))
			r.Delete("/versions/{versionId}", deleteVersionHandler(store))

			r.Get("/bundle-draft", getBundleDraftHandler(store))
			r.Put("/bundle-draft", updateBundleDraftHandler(store))

			r.Get("/releases", listReleasesHandler(store))
			r.Get("/deployments", listDeploymentsHandler(store))
		})
	})

	r.Post("/deploy", deployHandler(deployer))
	r.Post("/rollback", rollbackHandler(deployer))
	r.Post("/releases/{id}/publish", retryPublishHandler(deployer))

	return r
}

// NewPublicRouter creates the unauthenticated read-only routes game
// clients poll: the version descriptor and the compiled payload of the
// production channel.
func NewPublicRouter(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Route("/{gameId}/{envName}", func(r chi.Router) {
		r.Get("/version", publicVersionHandler(store))
		r.Get("/configs", publicConfigsHandler(store))
	})

	return r
}
