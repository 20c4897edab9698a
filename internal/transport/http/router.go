// Package http assembles the service's HTTP surface: middleware chain,
// authenticated API routes, health probes, and the metrics endpoint.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/pkg/middleware"
)

// Registrar mounts a handler group on a router subtree.
type Registrar interface {
	Register(r chi.Router)
}

// RouterParams carries everything the router needs.
type RouterParams struct {
	Logger    *slog.Logger
	Validator middleware.TokenValidator
	Health    *HealthHandler
	API       []Registrar
}

// NewRouter builds the full route tree. API routes sit behind
// authentication; probes and metrics do not.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(params.Logger))
	r.Use(middleware.Logger(params.Logger))

	params.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(params.Validator, params.Logger))
		for _, api := range params.API {
			api.Register(r)
		}
	})

	return r
}
