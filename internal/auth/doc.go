// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package auth provides the account and session token core of Keygate.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a normalized email and a pre-computed hash
//   - NewSessionToken - creates a SessionToken whose expiry is issue time plus TTL
//
// Tokens are never updated. Supersession, eviction, expiry and revocation
// all delete the row.
//
// # Services
//
//   - TokenManager - issue, revoke, sweep and authenticate session tokens
//   - Service - register, login and logout, with an optional captcha gate
//
// Compound token operations for one user run under a UserLocker. Storage
// backends live in the memory, postgres and redis subpackages.
package auth
