// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

// DeleteReason labels why a session token was removed.
type DeleteReason string

// Token deletion reasons.
const (
	DeleteSuperseded DeleteReason = "superseded"
	DeleteEvicted    DeleteReason = "evicted"
	DeleteExpired    DeleteReason = "expired"
	DeleteRevoked    DeleteReason = "revoked"
)

// Recorder receives lifecycle counters. The observability package provides
// the Prometheus-backed implementation.
type Recorder interface {
	TokenIssued(device DeviceType)
	TokensDeleted(reason DeleteReason, n int64)
	AuthOutcome(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) TokenIssued(DeviceType)            {}
func (nopRecorder) TokensDeleted(DeleteReason, int64) {}
func (nopRecorder) AuthOutcome(string, string)        {}

// NopRecorder discards everything.
var NopRecorder Recorder = nopRecorder{}
