// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CaptchaVerifier checks a client-supplied captcha response.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// ServiceConfig holds construction-time switches for Service.
type ServiceConfig struct {
	// CaptchaEnabled gates Register and Login on the CaptchaVerifier.
	CaptchaEnabled bool
}

// RegisterOutcome is the result of Register.
type RegisterOutcome string

// Register outcomes.
const (
	RegisterCreated        RegisterOutcome = "created"
	RegisterEmailExists    RegisterOutcome = "email_exists"
	RegisterCaptchaInvalid RegisterOutcome = "captcha_invalid"
	RegisterFailed         RegisterOutcome = "failed"
)

// LoginOutcome is the result of Login.
type LoginOutcome string

// Login outcomes.
const (
	LoginSuccess         LoginOutcome = "success"
	LoginUserNotFound    LoginOutcome = "user_not_found"
	LoginInvalidPassword LoginOutcome = "invalid_password"
	LoginCaptchaInvalid  LoginOutcome = "captcha_invalid"
)

// LogoutOutcome is the result of Logout.
type LogoutOutcome string

// Logout outcomes.
const (
	LogoutSuccess LogoutOutcome = "success"
	LogoutFailed  LogoutOutcome = "failed"
)

// RegisterInput carries already-validated registration fields.
type RegisterInput struct {
	Name         string
	Email        string
	Password     string
	CaptchaToken string
}

// LoginInput carries already-validated login fields plus the request
// fingerprint.
type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	DeviceInfo   string
	IPAddress    string
}

// LoginResult describes a login attempt. Secret and User are set only when
// Outcome is LoginSuccess.
type LoginResult struct {
	Outcome LoginOutcome
	Secret  string
	User    UserSummary
	Token   *SessionToken
}

// Service orchestrates registration, login and logout.
type Service struct {
	cfg      ServiceConfig
	captcha  CaptchaVerifier
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenManager
	logger   *slog.Logger
	recorder Recorder
	clock    func() time.Time
}

// NewService creates a Service. captcha may be nil when CaptchaEnabled is false.
func NewService(cfg ServiceConfig, captcha CaptchaVerifier, users UserRepository, hasher PasswordHasher, tokens *TokenManager, logger *slog.Logger) (*Service, error) {
	if cfg.CaptchaEnabled && captcha == nil {
		return nil, oops.Errorf("captcha verifier is required when captcha is enabled")
	}
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		captcha:  captcha,
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger,
		recorder: tokens.recorder,
		clock:    time.Now,
	}, nil
}

// Tokens returns the underlying token manager.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

func (s *Service) captchaPasses(ctx context.Context, token string) (bool, error) {
	if !s.cfg.CaptchaEnabled {
		return true, nil
	}
	ok, err := s.captcha.Verify(ctx, token)
	if err != nil {
		return false, oops.Code("CAPTCHA_VERIFY_FAILED").Wrap(err)
	}
	return ok, nil
}

// Register creates a user account.
//
// EmailExists and CaptchaInvalid are outcomes, not errors. A storage failure
// returns RegisterFailed together with the error.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterOutcome, error) {
	outcome, err := s.register(ctx, in)
	s.recorder.AuthOutcome("register", string(outcome))
	return outcome, err
}

func (s *Service) register(ctx context.Context, in RegisterInput) (RegisterOutcome, error) {
	ok, err := s.captchaPasses(ctx, in.CaptchaToken)
	if err != nil {
		return RegisterFailed, err
	}
	if !ok {
		return RegisterCaptchaInvalid, nil
	}

	email := NormalizeEmail(in.Email)
	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return RegisterEmailExists, nil
	case !errors.Is(err, ErrNotFound):
		return RegisterFailed, oops.Code("USER_CREATE_FAILED").With("operation", "get user by email").Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterFailed, oops.Code("USER_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(in.Name, email, hash, s.clock())
	if err != nil {
		return RegisterFailed, oops.Code("USER_CREATE_FAILED").With("operation", "build user").Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Lost the race against a concurrent registration.
		if errors.Is(err, ErrEmailTaken) {
			return RegisterEmailExists, nil
		}
		return RegisterFailed, oops.Code("USER_CREATE_FAILED").With("operation", "persist user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return RegisterCreated, nil
}

// Login verifies credentials and issues a session token for the caller's
// device and IP.
func (s *Service) Login(ctx context.Context, in LoginInput, now time.Time) (*LoginResult, error) {
	res, err := s.login(ctx, in, now)
	if err != nil {
		s.recorder.AuthOutcome("login", "failed")
		return nil, err
	}
	s.recorder.AuthOutcome("login", string(res.Outcome))
	return res, nil
}

func (s *Service) login(ctx context.Context, in LoginInput, now time.Time) (*LoginResult, error) {
	ok, err := s.captchaPasses(ctx, in.CaptchaToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &LoginResult{Outcome: LoginCaptchaInvalid}, nil
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(in.Email))
	if errors.Is(err, ErrNotFound) {
		return &LoginResult{Outcome: LoginUserNotFound}, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(err)
	}

	valid, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		return &LoginResult{Outcome: LoginInvalidPassword}, nil
	}

	s.upgradeHash(ctx, user, in.Password)

	issued, err := s.tokens.Issue(ctx, user.ID, in.DeviceInfo, in.IPAddress, now)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue token").Wrap(err)
	}

	return &LoginResult{
		Outcome: LoginSuccess,
		Secret:  issued.Secret,
		User:    user.Summary(),
		Token:   issued.Token,
	}, nil
}

// upgradeHash replaces a legacy hash after a successful verification.
// Failures are logged; login proceeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID.String(), "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.logger.WarnContext(ctx, "password rehash not persisted", "user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = hash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// Logout revokes the token identified by secret for userID.
// Nothing to revoke is reported as LogoutFailed without an error.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID, secret string) (LogoutOutcome, error) {
	revoked, err := s.tokens.Revoke(ctx, userID, secret)
	if err != nil {
		s.recorder.AuthOutcome("logout", "error")
		return LogoutFailed, oops.Code("AUTH_LOGOUT_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	outcome := LogoutFailed
	if revoked {
		outcome = LogoutSuccess
	}
	s.recorder.AuthOutcome("logout", string(outcome))
	return outcome, nil
}
