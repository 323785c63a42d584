// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

// ResponseCode is the numeric code carried in every response envelope.
// Codes are stable and part of the public API.
type ResponseCode int

// Auth outcome codes.
const (
	CodeLoginSuccess          ResponseCode = 1000
	CodeLoginInvalidPassword  ResponseCode = 1001
	CodeLoginUserNotFound     ResponseCode = 1002
	CodeLoginDuplicateSession ResponseCode = 1003
	CodeLoginFail             ResponseCode = 1004

	CodeLogoutSuccess ResponseCode = 1100
	CodeLogoutFail    ResponseCode = 1101

	CodeRegisterSuccess     ResponseCode = 1200
	CodeRegisterEmailExists ResponseCode = 1201
	CodeRegisterFail        ResponseCode = 1202

	CodeCaptchaInvalid ResponseCode = 1400
	CodeCaptchaExpired ResponseCode = 1401
)

// Request and server error codes.
const (
	CodeInvalidCredentials ResponseCode = 4100
	CodeValidationError    ResponseCode = 4220

	CodeServerError      ResponseCode = 5000
	CodeResourceNotFound ResponseCode = 5002
	CodeRouteNotFound    ResponseCode = 5003
	CodeDatabaseError    ResponseCode = 5004
)

var codeMessages = map[ResponseCode]string{
	CodeLoginSuccess:          "Login successful",
	CodeLoginInvalidPassword:  "Incorrect password",
	CodeLoginUserNotFound:     "User not found",
	CodeLoginDuplicateSession: "Already logged in elsewhere",
	CodeLoginFail:             "Login failed",
	CodeLogoutSuccess:         "Logout successful",
	CodeLogoutFail:            "Logout failed",
	CodeRegisterSuccess:       "Registration successful",
	CodeRegisterEmailExists:   "Email is already registered",
	CodeRegisterFail:          "Registration failed",
	CodeCaptchaInvalid:        "Captcha verification failed",
	CodeCaptchaExpired:        "Captcha has expired",
	CodeInvalidCredentials:    "Unauthenticated",
	CodeValidationError:       "Validation failed",
	CodeServerError:           "Internal server error",
	CodeResourceNotFound:      "Resource not found",
	CodeRouteNotFound:         "Route not found",
	CodeDatabaseError:         "Database error",
}

// Message returns the human-readable title for c.
func (c ResponseCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return codeMessages[CodeServerError]
}
