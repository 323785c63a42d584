// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/memory"
	"github.com/keygate/keygate/internal/auth/mocks"
	"github.com/keygate/keygate/pkg/errutil"
)

type serviceFixture struct {
	svc    *auth.Service
	users  *memory.UserStore
	tokens *memory.TokenStore
	logs   *bytes.Buffer
}

func newServiceFixture(t *testing.T, cfg auth.ServiceConfig, captcha auth.CaptchaVerifier) *serviceFixture {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	users := memory.NewUserStore()
	tokens := memory.NewTokenStore()
	mgr, err := auth.NewTokenManager(tokens, auth.NewKeyedMutex(), auth.DefaultTokenPolicy(), logger, nil)
	require.NoError(t, err)
	svc, err := auth.NewService(cfg, captcha, users, auth.NewArgon2idHasher(), mgr, logger)
	require.NoError(t, err)
	return &serviceFixture{svc: svc, users: users, tokens: tokens, logs: &logs}
}

func (f *serviceFixture) register(t *testing.T, email, password string) {
	t.Helper()
	outcome, err := f.svc.Register(context.Background(), auth.RegisterInput{Name: "Test User", Email: email, Password: password})
	require.NoError(t, err)
	require.Equal(t, auth.RegisterCreated, outcome)
}

func TestNewService_Validation(t *testing.T) {
	mgr, _ := newManager(t, auth.DefaultTokenPolicy())
	users := memory.NewUserStore()
	hasher := auth.NewArgon2idHasher()

	tests := []struct {
		name    string
		cfg     auth.ServiceConfig
		users   auth.UserRepository
		hasher  auth.PasswordHasher
		tokens  *auth.TokenManager
		errText string
	}{
		{name: "captcha enabled without verifier", cfg: auth.ServiceConfig{CaptchaEnabled: true}, users: users, hasher: hasher, tokens: mgr, errText: "captcha verifier"},
		{name: "nil users", hasher: hasher, tokens: mgr, errText: "user repository"},
		{name: "nil hasher", users: users, tokens: mgr, errText: "password hasher"},
		{name: "nil token manager", users: users, hasher: hasher, errText: "token manager"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.cfg, nil, tt.users, tt.hasher, tt.tokens, nil)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate email is reported, not created twice", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)

		outcome, err := f.svc.Register(ctx, auth.RegisterInput{Name: "New", Email: "new@x.com", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, auth.RegisterCreated, outcome)

		outcome, err = f.svc.Register(ctx, auth.RegisterInput{Name: "Other", Email: "new@x.com", Password: "secret2"})
		require.NoError(t, err)
		assert.Equal(t, auth.RegisterEmailExists, outcome)

		user, err := f.users.GetByEmail(ctx, "new@x.com")
		require.NoError(t, err)
		assert.Equal(t, "New", user.Name)
	})

	t.Run("email comparison ignores case and whitespace", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "Mixed@Example.COM", "secret1")

		outcome, err := f.svc.Register(ctx, auth.RegisterInput{Name: "Dup", Email: "  mixed@example.com ", Password: "secret2"})
		require.NoError(t, err)
		assert.Equal(t, auth.RegisterEmailExists, outcome)
	})

	t.Run("stores a slow hash, never the password", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "hash@x.com", "plaintext-pw")

		user, err := f.users.GetByEmail(ctx, "hash@x.com")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$"))
		assert.NotContains(t, user.PasswordHash, "plaintext-pw")
	})

	t.Run("lost unique race maps to email exists", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		users.On("GetByEmail", mock.Anything, "race@x.com").Return(nil, auth.ErrNotFound)
		users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(auth.ErrEmailTaken)

		mgr, _ := newManager(t, auth.DefaultTokenPolicy())
		svc, err := auth.NewService(auth.ServiceConfig{}, nil, users, auth.NewArgon2idHasher(), mgr, nil)
		require.NoError(t, err)

		outcome, err := svc.Register(ctx, auth.RegisterInput{Name: "Racer", Email: "race@x.com", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, auth.RegisterEmailExists, outcome)
	})

	t.Run("storage failure is failed plus error", func(t *testing.T) {
		storageErr := errors.New("db down")
		users := mocks.NewMockUserRepository(t)
		users.On("GetByEmail", mock.Anything, "down@x.com").Return(nil, auth.ErrNotFound)
		users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(storageErr)

		mgr, _ := newManager(t, auth.DefaultTokenPolicy())
		svc, err := auth.NewService(auth.ServiceConfig{}, nil, users, auth.NewArgon2idHasher(), mgr, nil)
		require.NoError(t, err)

		outcome, err := svc.Register(ctx, auth.RegisterInput{Name: "Down", Email: "down@x.com", Password: "secret1"})
		assert.Equal(t, auth.RegisterFailed, outcome)
		assert.ErrorIs(t, err, storageErr)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})

	t.Run("captcha gate", func(t *testing.T) {
		captcha := mocks.NewMockCaptchaVerifier(t)
		captcha.On("Verify", mock.Anything, "bad").Return(false, nil).Once()
		captcha.On("Verify", mock.Anything, "good").Return(true, nil).Once()
		f := newServiceFixture(t, auth.ServiceConfig{CaptchaEnabled: true}, captcha)

		outcome, err := f.svc.Register(ctx, auth.RegisterInput{Name: "C", Email: "c@x.com", Password: "secret1", CaptchaToken: "bad"})
		require.NoError(t, err)
		assert.Equal(t, auth.RegisterCaptchaInvalid, outcome)
		_, err = f.users.GetByEmail(ctx, "c@x.com")
		require.ErrorIs(t, err, auth.ErrNotFound)

		outcome, err = f.svc.Register(ctx, auth.RegisterInput{Name: "C", Email: "c@x.com", Password: "secret1", CaptchaToken: "good"})
		require.NoError(t, err)
		assert.Equal(t, auth.RegisterCreated, outcome)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("first login issues exactly one token", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "user@x.com", "password123")

		res, err := f.svc.Login(ctx, auth.LoginInput{
			Email: "user@x.com", Password: "password123",
			DeviceInfo: chromeWindows, IPAddress: "10.0.0.1",
		}, baseTime)
		require.NoError(t, err)
		require.Equal(t, auth.LoginSuccess, res.Outcome)
		assert.Len(t, res.Secret, 64)
		assert.Equal(t, "user@x.com", res.User.Email)
		assert.Equal(t, "Test User", res.User.Name)

		assert.Len(t, liveTokens(t, f.tokens, res.User.ID, baseTime), 1)
		assert.NotContains(t, f.logs.String(), "password123")
		assert.NotContains(t, f.logs.String(), res.Secret)
	})

	t.Run("repeat login from the same fingerprint refreshes the token", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "user@x.com", "password123")
		in := auth.LoginInput{Email: "user@x.com", Password: "password123", DeviceInfo: safariIPhone, IPAddress: "10.0.0.9"}

		first, err := f.svc.Login(ctx, in, baseTime)
		require.NoError(t, err)
		second, err := f.svc.Login(ctx, in, baseTime.Add(time.Second))
		require.NoError(t, err)

		assert.NotEqual(t, first.Secret, second.Secret)
		live := liveTokens(t, f.tokens, second.User.ID, baseTime.Add(time.Second))
		require.Len(t, live, 1)
		assert.Equal(t, second.Token.ID, live[0].ID)
	})

	t.Run("wrong password creates no token", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "user@x.com", "password123")

		res, err := f.svc.Login(ctx, auth.LoginInput{Email: "user@x.com", Password: "wrong", DeviceInfo: chromeWindows, IPAddress: "10.0.0.1"}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, auth.LoginInvalidPassword, res.Outcome)
		assert.Empty(t, res.Secret)
		assert.Equal(t, 0, f.tokens.Len())
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)

		res, err := f.svc.Login(ctx, auth.LoginInput{Email: "ghost@x.com", Password: "whatever"}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, auth.LoginUserNotFound, res.Outcome)
	})

	t.Run("captcha rejection short-circuits", func(t *testing.T) {
		captcha := mocks.NewMockCaptchaVerifier(t)
		captcha.On("Verify", mock.Anything, "").Return(false, nil)
		users := mocks.NewMockUserRepository(t)

		mgr, _ := newManager(t, auth.DefaultTokenPolicy())
		svc, err := auth.NewService(auth.ServiceConfig{CaptchaEnabled: true}, captcha, users, auth.NewArgon2idHasher(), mgr, nil)
		require.NoError(t, err)

		res, err := svc.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "pw"}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, auth.LoginCaptchaInvalid, res.Outcome)
		users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("captcha transport error propagates", func(t *testing.T) {
		captcha := mocks.NewMockCaptchaVerifier(t)
		netErr := errors.New("dial tcp: timeout")
		captcha.On("Verify", mock.Anything, "tok").Return(false, netErr)
		f := newServiceFixture(t, auth.ServiceConfig{CaptchaEnabled: true}, captcha)

		res, err := f.svc.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "pw", CaptchaToken: "tok"}, baseTime)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, netErr)
	})

	t.Run("legacy bcrypt hash is upgraded on success", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		legacy, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
		require.NoError(t, err)
		user, err := auth.NewUser("Admin User", "admin@example.com", "$2y$"+strings.TrimPrefix(string(legacy), "$2a$"), baseTime)
		require.NoError(t, err)
		require.NoError(t, f.users.Create(ctx, user))

		res, err := f.svc.Login(ctx, auth.LoginInput{Email: "admin@example.com", Password: "admin123", DeviceInfo: chromeWindows, IPAddress: "10.0.0.1"}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, auth.LoginSuccess, res.Outcome)

		stored, err := f.users.GetByEmail(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	})

	t.Run("rehash persistence failure does not fail login", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		user := &auth.User{ID: ulid.Make(), Name: "Old", Email: "old@x.com", PasswordHash: "$2y$legacy"}
		users.On("GetByEmail", mock.Anything, "old@x.com").Return(user, nil)
		users.On("UpdatePassword", mock.Anything, user.ID, "$argon2id$new").Return(errors.New("read only"))
		hasher.On("Verify", "pw", "$2y$legacy").Return(true, nil)
		hasher.On("NeedsUpgrade", "$2y$legacy").Return(true)
		hasher.On("Hash", "pw").Return("$argon2id$new", nil)

		mgr, tokens := newManager(t, auth.DefaultTokenPolicy())
		svc, err := auth.NewService(auth.ServiceConfig{}, nil, users, hasher, mgr, nil)
		require.NoError(t, err)

		res, err := svc.Login(ctx, auth.LoginInput{Email: "old@x.com", Password: "pw"}, baseTime)
		require.NoError(t, err)
		assert.Equal(t, auth.LoginSuccess, res.Outcome)
		assert.Equal(t, 1, tokens.Len())
	})

	t.Run("storage failure on lookup propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		storageErr := errors.New("db down")
		users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, storageErr)

		mgr, _ := newManager(t, auth.DefaultTokenPolicy())
		svc, err := auth.NewService(auth.ServiceConfig{}, nil, users, auth.NewArgon2idHasher(), mgr, nil)
		require.NoError(t, err)

		res, err := svc.Login(ctx, auth.LoginInput{Email: "A@x.com", Password: "pw"}, baseTime)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, storageErr)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes the presented token", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "user@x.com", "password123")
		res, err := f.svc.Login(ctx, auth.LoginInput{Email: "user@x.com", Password: "password123", DeviceInfo: chromeWindows, IPAddress: "10.0.0.1"}, baseTime)
		require.NoError(t, err)

		outcome, err := f.svc.Logout(ctx, res.User.ID, res.Secret)
		require.NoError(t, err)
		assert.Equal(t, auth.LogoutSuccess, outcome)
		assert.Equal(t, 0, f.tokens.Len())
	})

	t.Run("nothing to revoke is a soft failure", func(t *testing.T) {
		f := newServiceFixture(t, auth.ServiceConfig{}, nil)
		f.register(t, "user@x.com", "password123")
		res, err := f.svc.Login(ctx, auth.LoginInput{Email: "user@x.com", Password: "password123", DeviceInfo: chromeWindows, IPAddress: "10.0.0.1"}, baseTime)
		require.NoError(t, err)

		outcome, err := f.svc.Logout(ctx, ulid.Make(), "")
		require.NoError(t, err)
		assert.Equal(t, auth.LogoutFailed, outcome)
		assert.Len(t, liveTokens(t, f.tokens, res.User.ID, baseTime), 1, "store unchanged")
	})
}
