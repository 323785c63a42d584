// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/pkg/errutil"
)

// AuthService is the subset of auth.Service the handlers use.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.RegisterOutcome, error)
	Login(ctx context.Context, in auth.LoginInput, now time.Time) (*auth.LoginResult, error)
	Logout(ctx context.Context, userID ulid.ULID, secret string) (auth.LogoutOutcome, error)
}

// LoginData is the data payload of a successful login.
type LoginData struct {
	Token string           `json:"token"`
	User  auth.UserSummary `json:"user"`
}

// AuthHandler serves register, login and logout.
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
	clock  func() time.Time
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, logger *slog.Logger, clock func() time.Time) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	return &AuthHandler{svc: svc, logger: logger, clock: clock}
}

// clientIP returns the host part of the peer address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondValidation(w, map[string][]string{"body": {err.Error()}})
		return
	}
	if fe := req.validate(); !fe.empty() {
		respondValidation(w, fe)
		return
	}

	outcome, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "register failed", err)
		respond(w, http.StatusInternalServerError, CodeRegisterFail, nil)
		return
	}

	switch outcome {
	case auth.RegisterCreated:
		respond(w, http.StatusCreated, CodeRegisterSuccess, nil)
	case auth.RegisterEmailExists:
		respond(w, http.StatusBadRequest, CodeRegisterEmailExists, nil)
	case auth.RegisterCaptchaInvalid:
		respond(w, http.StatusBadRequest, CodeCaptchaInvalid, nil)
	default:
		respond(w, http.StatusBadRequest, CodeRegisterFail, nil)
	}
}

// Login handles POST /api/login. Token data is returned on success only.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondValidation(w, map[string][]string{"body": {err.Error()}})
		return
	}
	if fe := req.validate(); !fe.empty() {
		respondValidation(w, fe)
		return
	}

	res, err := h.svc.Login(r.Context(), auth.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		DeviceInfo:   r.UserAgent(),
		IPAddress:    clientIP(r),
	}, h.clock())
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "login failed", err)
		respond(w, http.StatusInternalServerError, CodeLoginFail, nil)
		return
	}

	switch res.Outcome {
	case auth.LoginSuccess:
		respond(w, http.StatusOK, CodeLoginSuccess, LoginData{Token: res.Secret, User: res.User})
	case auth.LoginInvalidPassword:
		respond(w, http.StatusUnauthorized, CodeLoginInvalidPassword, nil)
	case auth.LoginUserNotFound:
		respond(w, http.StatusUnauthorized, CodeLoginUserNotFound, nil)
	case auth.LoginCaptchaInvalid:
		respond(w, http.StatusBadRequest, CodeCaptchaInvalid, nil)
	default:
		respond(w, http.StatusInternalServerError, CodeLoginFail, nil)
	}
}

// Logout handles POST /api/logout. It must run behind the bearer middleware.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := SessionFromContext(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, CodeInvalidCredentials, nil)
		return
	}

	outcome, err := h.svc.Logout(r.Context(), token.UserID, secretFromContext(r.Context()))
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "logout failed", err)
		respond(w, http.StatusInternalServerError, CodeLogoutFail, nil)
		return
	}
	if outcome == auth.LogoutSuccess {
		respond(w, http.StatusOK, CodeLogoutSuccess, nil)
		return
	}
	respond(w, http.StatusBadRequest, CodeLogoutFail, nil)
}
