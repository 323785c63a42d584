// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package auth

import "regexp"

// DeviceType is a coarse client category derived from a user agent.
// It is used for token naming and metrics only, never for authorization.
type DeviceType string

// Device categories.
const (
	DeviceMobile  DeviceType = "Mobile"
	DevicePC      DeviceType = "PC"
	DeviceUnknown DeviceType = "Unknown"
)

var (
	mobileAgentRegex = regexp.MustCompile(`(?i)mobile|android|iphone|ipad`)
	pcAgentRegex     = regexp.MustCompile(`(?i)windows|macintosh|linux`)
)

// ClassifyDevice maps a user agent to a DeviceType.
// Mobile markers win over desktop markers, so an Android UA (which also
// mentions Linux) is Mobile.
func ClassifyDevice(userAgent string) DeviceType {
	switch {
	case mobileAgentRegex.MatchString(userAgent):
		return DeviceMobile
	case pcAgentRegex.MatchString(userAgent):
		return DevicePC
	default:
		return DeviceUnknown
	}
}

// TokenName returns the bookkeeping label stored on tokens issued to this
// device category, e.g. "Mobile-API_Token".
func (d DeviceType) TokenName() string {
	return string(d) + "-API_Token"
}
