// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package errutil

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, requireOops(t, err).Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	if assert.Contains(t, ctx, key) {
		assert.Equal(t, value, ctx[key], "context key %q", key)
	}
}

// AssertErrorFields asserts the code and every key/value in fields. Context
// merged from outer layers counts, so a storage error wrapped by the token
// manager can be checked in one call.
func AssertErrorFields(t *testing.T, err error, code string, fields map[string]any) {
	t.Helper()
	oopsErr := requireOops(t, err)
	assert.Equal(t, code, oopsErr.Code())
	ctx := oopsErr.Context()
	for key, want := range fields {
		if assert.Contains(t, ctx, key) {
			assert.Equal(t, want, ctx[key], "context key %q", key)
		}
	}
}

// AssertCodedSentinel asserts that err carries code and still matches
// target with errors.Is, the shape repositories use for auth.ErrNotFound
// and friends.
func AssertCodedSentinel(t *testing.T, err error, code string, target error) {
	t.Helper()
	AssertErrorCode(t, err, code)
	assert.True(t, errors.Is(err, target), "expected %v to match %v", err, target)
}

// AssertNoSecret asserts that secret appears neither in the error text nor
// in any oops context value.
func AssertNoSecret(t *testing.T, err error, secret string) {
	t.Helper()
	require.NotEmpty(t, secret)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), secret)
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	for key, v := range oopsErr.Context() {
		assert.NotContains(t, fmt.Sprint(v), secret, "context key %q leaks the secret", key)
	}
	assert.False(t, strings.Contains(oopsErr.Public(), secret), "public message leaks the secret")
}
