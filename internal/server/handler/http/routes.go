// Package http provides HTTP routing and middleware configuration
// for the passe daemon.
package http

import (
	"net/http"

	"github.com/atinyakov/passe/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves
// the passe API.
//
// Routes:
//
//	GET    /api/identities                     → registryHandler.ListIdentities
//	POST   /api/identities                     → registryHandler.CreateIdentity
//	DELETE /api/identities/{name}              → registryHandler.DeleteIdentity
//	GET    /api/identities/{name}/sites        → registryHandler.ListSites
//	POST   /api/identities/{name}/sites        → registryHandler.AddSite
//	DELETE /api/identities/{name}/sites/{site} → registryHandler.RemoveSite
//	GET    /api/session                        → sessionHandler.Status
//	POST   /api/session/identity               → sessionHandler.SelectIdentity
//	POST   /api/session/secret                 → sessionHandler.SubmitSecret
//	POST   /api/session/sites                  → sessionHandler.AddSiteAndReveal
//	POST   /api/session/view                   → sessionHandler.ViewSite
//	POST   /api/session/lock                   → sessionHandler.Lock
//
// Middleware chain (applied in order):
//  1. LoopbackOnly                       - rejects non-loopback peers
//  2. LocalHostOnly(hosts...)            - rejects foreign Host and Origin headers
//  3. WithRequestLogging(logger)         - logs incoming requests
//  4. NoStore                            - disables caching of responses
//  5. AllowContentType("application/json") - rejects non-JSON bodies
//
// hosts lists names, besides the loopback ones, that clients may use in
// the Host header, typically the host of the listen address.
func NewRouter(
	registryHandler *RegistryHandler,
	sessionHandler *SessionHandler,
	logger *zap.Logger,
	hosts ...string,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.LoopbackOnly)
	r.Use(middleware.LocalHostOnly(hosts...))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.NoStore)
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/identities", func(r chi.Router) {
			r.Get("/", registryHandler.ListIdentities)
			r.Post("/", registryHandler.CreateIdentity)
			r.Delete("/{name}", registryHandler.DeleteIdentity)
			r.Get("/{name}/sites", registryHandler.ListSites)
			r.Post("/{name}/sites", registryHandler.AddSite)
			r.Delete("/{name}/sites/{site}", registryHandler.RemoveSite)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Status)
			r.Post("/identity", sessionHandler.SelectIdentity)
			r.Post("/secret", sessionHandler.SubmitSecret)
			r.Post("/sites", sessionHandler.AddSiteAndReveal)
			r.Post("/view", sessionHandler.ViewSite)
			r.Post("/lock", sessionHandler.Lock)
		})
	})

	return r
}
