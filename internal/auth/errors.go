// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by UserRepository.Create when the email is
// already registered (including a lost race on the unique index).
var ErrEmailTaken = errors.New("email already registered")

// ErrInvalidToken is returned when a presented bearer secret does not
// resolve to a live session token.
var ErrInvalidToken = errors.New("invalid session token")
