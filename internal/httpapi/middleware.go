// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/pkg/errutil"
)

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}

// Authenticator resolves a bearer secret to a live session token.
type Authenticator interface {
	Authenticate(ctx context.Context, secret string, now time.Time) (*auth.SessionToken, error)
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// unmatchedRoute labels requests that no route handled.
const unmatchedRoute = "unmatched"

type routeMarkKey struct{}

// routeMark lets the not-found handler tell the logging middleware that no
// route matched; chi otherwise reports the enclosing subrouter's wildcard.
type routeMark struct{ unmatched bool }

func markUnmatched(r *http.Request) {
	if m, ok := r.Context().Value(routeMarkKey{}).(*routeMark); ok {
		m.unmatched = true
	}
}

// routePattern returns the chi pattern that served r, so metric labels stay
// bounded regardless of the request path.
func routePattern(r *http.Request, mark *routeMark) string {
	if mark != nil && mark.unmatched {
		return unmatchedRoute
	}
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

// NewLoggingMiddleware logs method, path, status and duration of every
// request, at a level chosen by status. Bodies are never logged. observer
// may be nil.
func NewLoggingMiddleware(logger *slog.Logger, observer RequestObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			mark := &routeMark{}
			r = r.WithContext(context.WithValue(r.Context(), routeMarkKey{}, mark))

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			route := routePattern(r, mark)
			if observer != nil {
				observer.ObserveRequest(route, rec.statusCode, elapsed)
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(elapsed.Nanoseconds())/float64(time.Millisecond)),
			}
			logger.Log(r.Context(), level, "http request", args...)
		})
	}
}

// NewRecoveryMiddleware turns a handler panic into a JSON 500.
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					respond(w, http.StatusInternalServerError, CodeServerError, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type sessionKey struct{}

// WithSession returns a context carrying the authenticated token.
func WithSession(ctx context.Context, token *auth.SessionToken) context.Context {
	return context.WithValue(ctx, sessionKey{}, token)
}

// SessionFromContext returns the token stored by the bearer middleware.
func SessionFromContext(ctx context.Context) (*auth.SessionToken, bool) {
	token, ok := ctx.Value(sessionKey{}).(*auth.SessionToken)
	return token, ok && token != nil
}

// bearerSecret extracts the secret from an "Authorization: Bearer" header.
func bearerSecret(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, secret, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	secret = strings.TrimSpace(secret)
	return secret, secret != ""
}

// NewBearerMiddleware rejects requests without a live session token and
// stores the resolved token on the request context. The secret travels on
// in the context as well so logout can revoke exactly it.
func NewBearerMiddleware(authn Authenticator, clock func() time.Time, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearerSecret(r)
			if !ok {
				respond(w, http.StatusUnauthorized, CodeInvalidCredentials, nil)
				return
			}
			token, err := authn.Authenticate(r.Context(), secret, clock())
			if errors.Is(err, auth.ErrInvalidToken) {
				respond(w, http.StatusUnauthorized, CodeInvalidCredentials, nil)
				return
			}
			if err != nil {
				errutil.LogErrorContext(r.Context(), logger, "bearer authentication failed", err)
				respond(w, http.StatusInternalServerError, CodeServerError, nil)
				return
			}
			ctx := WithSession(r.Context(), token)
			ctx = context.WithValue(ctx, secretKey{}, secret)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type secretKey struct{}

func secretFromContext(ctx context.Context) string {
	s, _ := ctx.Value(secretKey{}).(string)
	return s
}
