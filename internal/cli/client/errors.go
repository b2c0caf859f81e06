package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Exchange failure kinds, matched with errors.Is
var (
	// ErrInvalidCredentials means the backend rejected the submitted credentials
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidGrant means a provider code or token was expired, replayed, or otherwise rejected
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrNetwork covers transport failures and unexpected backend responses
	ErrNetwork = errors.New("network error")

	// ErrNotAuthenticated is returned by calls that need a session token when there is none
	ErrNotAuthenticated = errors.New("not authenticated")
)

// grant error codes OAuth providers relay through the backend
var grantCodes = []string{"invalid_grant", "bad_verification_code", "incorrect_client_credentials"}

// ExchangeError is the normalized failure of any API call
type ExchangeError struct {
	Kind    error
	Status  int
	Message string
	Cause   error
}

func (e *ExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the failure kind
func (e *ExchangeError) Is(target error) bool {
	return target == e.Kind
}

func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// Message returns the display message for err: the backend's own message when
// the failure carried one, the error text otherwise
func Message(err error) string {
	if err == nil {
		return ""
	}
	var exErr *ExchangeError
	if errors.As(err, &exErr) && exErr.Message != "" {
		return exErr.Message
	}
	return err.Error()
}

// errorPayload covers the error body shapes the API and OAuth providers return
type errorPayload struct {
	Message          string `json:"message"`
	Detail           string `json:"detail"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p errorPayload) text() string {
	for _, s := range []string{p.Message, p.Detail, p.Error, p.ErrorDescription} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (p errorPayload) isGrantError() bool {
	for _, field := range []string{p.Error, p.Message, p.Detail, p.ErrorDescription} {
		lower := strings.ToLower(field)
		for _, code := range grantCodes {
			if strings.Contains(lower, code) {
				return true
			}
		}
	}
	return false
}

// newStatusError normalizes a non-success response. kind applies to 4xx client
// errors; a grant error code in the body always yields ErrInvalidGrant.
func newStatusError(status int, body []byte, kind error) *ExchangeError {
	var payload errorPayload
	_ = json.Unmarshal(body, &payload)

	msg := payload.text()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" || strings.HasPrefix(msg, "<") {
		msg = http.StatusText(status)
	}

	exErr := &ExchangeError{Kind: ErrNetwork, Status: status, Message: msg}
	switch {
	case status >= 500:
	case payload.isGrantError():
		exErr.Kind = ErrInvalidGrant
	case kind != nil && (status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden):
		exErr.Kind = kind
	}
	return exErr
}
