// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxBodyBytes      = 1 << 20
	maxFieldLength    = 255
	minPasswordLength = 6
)

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	CaptchaToken         string `json:"captcha_token"`
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

// fieldErrors collects validation messages keyed by field name.
type fieldErrors map[string][]string

func (fe fieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

func (fe fieldErrors) empty() bool {
	return len(fe) == 0
}

// decodeBody reads a single JSON object from r into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func validateEmail(fe fieldErrors, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		fe.add("email", "The email field is required.")
		return
	}
	if utf8.RuneCountInString(email) > maxFieldLength {
		fe.add("email", "The email may not be greater than 255 characters.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		fe.add("email", "The email must be a valid email address.")
	}
}

func validatePassword(fe fieldErrors, password string) {
	if password == "" {
		fe.add("password", "The password field is required.")
		return
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		fe.add("password", "The password must be at least 6 characters.")
	}
}

func (req *loginRequest) validate() fieldErrors {
	fe := fieldErrors{}
	validateEmail(fe, req.Email)
	validatePassword(fe, req.Password)
	return fe
}

func (req *registerRequest) validate() fieldErrors {
	fe := fieldErrors{}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		fe.add("name", "The name field is required.")
	case utf8.RuneCountInString(name) > maxFieldLength:
		fe.add("name", "The name may not be greater than 255 characters.")
	}
	validateEmail(fe, req.Email)
	validatePassword(fe, req.Password)
	if req.Password != "" && req.Password != req.PasswordConfirmation {
		fe.add("password", "The password confirmation does not match.")
	}
	return fe
}
