// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package httpapi exposes the auth service over JSON HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RouterDeps groups what NewRouter needs.
type RouterDeps struct {
	Service       AuthService
	Authenticator Authenticator
	Observer      RequestObserver
	Logger        *slog.Logger
	Clock         func() time.Time
}

// NewRouter builds the API router.
//
// Middleware order: recovery → logging → (bearer, on protected routes).
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	h := NewAuthHandler(deps.Service, logger, clock)

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewLoggingMiddleware(logger, deps.Observer))

	r.Get("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(NewBearerMiddleware(deps.Authenticator, clock, logger)).Post("/logout", h.Logout)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		markUnmatched(r)
		respond(w, http.StatusNotFound, CodeRouteNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusMethodNotAllowed, CodeRouteNotFound, nil)
	})

	return r
}
