// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/api/handlers"
	"github.com/pluginstore/registry/internal/api/middleware"
	"github.com/pluginstore/registry/internal/config"
	"github.com/pluginstore/registry/internal/metrics"
	"github.com/pluginstore/registry/internal/services/license"
	"github.com/pluginstore/registry/pkg/httphelpers"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	compressMinSize   = 1024

	apiThrottleLimit   = 64
	apiThrottleBacklog = 256
	apiThrottleTimeout = 30 * time.Second
)

// Dependencies holds what the HTTP server needs. MetricsManager may be nil.
type Dependencies struct {
	Config         *config.AppConfig
	LicenseService *license.Service
	MetricsManager *metrics.Manager
}

type Server struct {
	deps   *Dependencies
	logger zerolog.Logger

	throttleLimit   int
	throttleBacklog int
	throttleTimeout time.Duration
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		deps:            deps,
		logger:          log.Logger.With().Str("module", "http").Logger(),
		throttleLimit:   apiThrottleLimit,
		throttleBacklog: apiThrottleBacklog,
		throttleTimeout: apiThrottleTimeout,
	}
}

// Handler builds the router. It fails when the trusted proxy list cannot be
// parsed.
func (s *Server) Handler() (*chi.Mux, error) {
	cfg := s.deps.Config.Config

	prefixes, err := cfg.ParseTrustedProxyCIDRs()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))

	base := httphelpers.NormalizeBasePath(cfg.BaseURL)

	r.Get(httphelpers.JoinBasePath(base, "/health"), func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.MetricsEnabled && s.deps.MetricsManager != nil {
		r.Handle(httphelpers.JoinBasePath(base, "/metrics"),
			promhttp.HandlerFor(s.deps.MetricsManager.GetRegistry(), promhttp.HandlerOpts{}))
	}

	api, err := s.newAPIRouter(prefixes)
	if err != nil {
		return nil, err
	}
	handlers.NewLicenseHandler(s.deps.LicenseService).RegisterRoutes(api)

	r.Mount(httphelpers.JoinBasePath(base, "/api"), api)

	return r, nil
}

// newAPIRouter returns the /api router with its middleware stack. Untrusted
// peers are rejected before they take a throttle slot.
func (s *Server) newAPIRouter(prefixes []netip.Prefix) (*chi.Mux, error) {
	compress, err := httpcompression.DefaultAdapter(httpcompression.MinSize(compressMinSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build compression middleware")
	}

	api := chi.NewRouter()
	api.Use(middleware.RequireTrustedProxy(prefixes))
	api.Use(middleware.ThrottleBacklog(s.throttleLimit, s.throttleBacklog, s.throttleTimeout))
	api.Use(compress)
	api.Use(middleware.Identity)
	return api, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	router, err := s.Handler()
	if err != nil {
		return err
	}

	cfg := s.deps.Config.Config
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}
