// Package api exposes the content services over HTTP with chi. Content
// routes live under /api/{kind}, site definitions under /api/site-definitions.
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// NewRouter mounts the content and site handlers with the standard middleware
// and the /healthz probes.
func NewRouter(registry *simplecms.Registry, sites *simplecms.SiteService, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/api", func(r chi.Router) {
		if sites != nil {
			r.Mount("/site-definitions", NewSiteHandler(sites, logger).Routes())
		}
		r.Mount("/{kind}", NewContentHandler(registry, logger).Routes())
	})

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	return r
}
