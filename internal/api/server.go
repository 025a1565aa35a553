// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/digiprod/internal/api/handlers"
	"github.com/autobrr/digiprod/internal/api/middleware"
	"github.com/autobrr/digiprod/internal/config"
	"github.com/autobrr/digiprod/internal/events"
	"github.com/autobrr/digiprod/internal/models"
	"github.com/autobrr/digiprod/internal/services/catalog"
	"github.com/autobrr/digiprod/internal/services/license"
)

// Dependencies holds everything the HTTP layer calls into.
type Dependencies struct {
	Config       *config.AppConfig
	DB           handlers.Pinger
	Dispatcher   *events.Dispatcher
	ProductTypes *catalog.ProductTypeService
	Products     *catalog.ProductService
	Licenses     *license.Service
	Users        *models.UserStore
}

type Server struct {
	server *http.Server
	logger zerolog.Logger
	deps   *Dependencies
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(deps.Config.Config.Host, strconv.Itoa(deps.Config.Config.Port)),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: log.Logger.With().Str("module", "api").Logger(),
		deps:   deps,
	}
}

// Handler builds the router. It fails when the webhook allowlist cannot be
// parsed.
func (s *Server) Handler() (http.Handler, error) {
	cfg := s.deps.Config.Config
	if _, err := cfg.ParseHookAllowedCIDRs(); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(s.logger))

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Actor-ID", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	compress, err := middleware.Compress(middleware.DefaultCompression)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		s.routes(r, compress)
	} else {
		r.Route(baseURL, func(r chi.Router) { s.routes(r, compress) })
	}
	return r, nil
}

func (s *Server) routes(r chi.Router, compress func(http.Handler) http.Handler) {
	cfg := s.deps.Config.Config

	handlers.NewHealthHandler(s.deps.DB).Routes(r)

	r.Route("/api", func(r chi.Router) {
		r.Use(compress)
		r.Use(middleware.RequireAPIKey(func() string { return cfg.APIKey }))
		r.Use(middleware.Actor)

		r.Route("/product-types", handlers.NewProductTypeHandler(s.deps.ProductTypes).Routes)
		r.Route("/products", handlers.NewProductHandler(s.deps.Products).Routes)
		r.Route("/licenses", handlers.NewLicenseHandler(s.deps.Licenses).Routes)
		r.Route("/users", handlers.NewUserHandler(s.deps.Users).Routes)
		r.Route("/settings", handlers.NewSettingsHandler(s.deps.Config).Routes)

		r.Route("/hooks", func(r chi.Router) {
			r.Use(middleware.RequireHookAllowlist(cfg.ParseHookAllowedCIDRs))
			handlers.NewHookHandler(s.deps.Dispatcher).Routes(r)
		})
	})
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.server.Handler = handler

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
