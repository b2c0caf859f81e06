package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopsync-dev/shopsync/internal/session"
)

// PasswordRequest represents the password login request body
type PasswordRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// GoogleRequest carries the identity token issued by the Google widget
type GoogleRequest struct {
	Credential string `json:"credential" validate:"required"`
}

// GitHubRequest carries the single-use authorization code from the GitHub redirect
type GitHubRequest struct {
	Code string `json:"code" validate:"required"`
}

// User is the user record as the API serializes it
type User struct {
	ID       ID     `json:"_id"`
	AltID    ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"isAdmin"`
	Token    string `json:"token"`
}

// Session converts the record into the session the store holds
func (u User) Session(via session.Pathway) *session.Session {
	id := u.ID
	if id == "" {
		id = u.AltID
	}
	name := u.Name
	if name == "" {
		name = u.Username
	}
	return &session.Session{
		UserID:      string(id),
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: name,
		IsAdmin:     u.IsAdmin,
		Token:       u.Token,
		IssuedVia:   via,
	}
}

// Tokens is the access/refresh pair issued by the Google exchange
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// GoogleResult is the outcome of a Google token exchange
type GoogleResult struct {
	Session *session.Session
	Tokens  Tokens
}

type googleResponse struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

type githubResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ExchangePassword trades an email and password for a session. It is never retried.
func (c *Client) ExchangePassword(ctx context.Context, email, password string) (*session.Session, error) {
	reqBody := PasswordRequest{Email: email, Password: password}
	if err := c.validate.Struct(reqBody); err != nil {
		return nil, &ExchangeError{Kind: ErrInvalidCredentials, Message: "email and password are required", Cause: err}
	}

	var user User
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/users/login",
		body:   reqBody,
		kind:   ErrInvalidCredentials,
	}, &user)
	if err != nil {
		return nil, err
	}

	sess := user.Session(session.PathwayPassword)
	if sess.Token == "" {
		return nil, missingToken()
	}
	return sess, nil
}

// ExchangeGoogleToken trades a Google identity token for a session plus an
// access/refresh token pair
func (c *Client) ExchangeGoogleToken(ctx context.Context, credential string) (*GoogleResult, error) {
	reqBody := GoogleRequest{Credential: credential}
	if err := c.validate.Struct(reqBody); err != nil {
		return nil, &ExchangeError{Kind: ErrInvalidGrant, Message: "missing Google credential", Cause: err}
	}

	var resp googleResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/google",
		body:   reqBody,
		kind:   ErrInvalidGrant,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sess := resp.User.Session(session.PathwayGoogle)
	if sess.Token == "" {
		sess.Token = resp.Tokens.Access
	}
	if sess.Token == "" {
		return nil, missingToken()
	}
	return &GoogleResult{Session: sess, Tokens: resp.Tokens}, nil
}

// ExchangeGitHubCode trades a GitHub authorization code for a session.
// Codes are single use; a replayed or expired code fails with ErrInvalidGrant.
func (c *Client) ExchangeGitHubCode(ctx context.Context, code string) (*session.Session, error) {
	reqBody := GitHubRequest{Code: code}
	if err := c.validate.Struct(reqBody); err != nil {
		return nil, &ExchangeError{Kind: ErrInvalidGrant, Message: "missing authorization code", Cause: err}
	}

	var resp githubResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/github",
		body:   reqBody,
		kind:   ErrInvalidGrant,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sess := resp.User.Session(session.PathwayGitHub)
	if resp.Token != "" {
		sess.Token = resp.Token
	}
	if sess.Token == "" {
		return nil, missingToken()
	}
	return sess, nil
}

func missingToken() *ExchangeError {
	return &ExchangeError{
		Kind:    ErrNetwork,
		Status:  http.StatusOK,
		Message: "unexpected response from server",
		Cause:   fmt.Errorf("response carried no token"),
	}
}
