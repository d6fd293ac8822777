package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/normalize"
)

// tokenKeys are the response paths a token may arrive under, in order.
var tokenKeys = []string{"token", "accessToken", "access_token", "data.token"}

// userKeys are the response paths the user object may arrive under.
var userKeys = []string{"user", "data.user"}

// Session is the outcome of a successful login, signup or refresh.
type Session struct {
	Token string
	// User is nil when the response carried no user object.
	User *model.User
}

// Auth calls the /api/auth endpoints.
type Auth struct {
	client *Client
}

// NewAuth creates an Auth on client. The client should not carry a token
// source; tokens are passed explicitly.
func NewAuth(client *Client) *Auth {
	return &Auth{client: client}
}

// Login exchanges email and password for a session.
func (a *Auth) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": email, "password": password}
	s, err := a.post(ctx, "/api/auth/login", body, "")
	if err != nil {
		return Session{}, fmt.Errorf("logging in: %w", err)
	}
	return s, nil
}

// Signup creates an account and returns its session.
func (a *Auth) Signup(ctx context.Context, name, email, password, role string) (Session, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	if role != "" {
		body["role"] = role
	}
	s, err := a.post(ctx, "/api/auth/signup", body, "")
	if err != nil {
		return Session{}, fmt.Errorf("signing up: %w", err)
	}
	return s, nil
}

// Refresh exchanges token for a fresh one.
func (a *Auth) Refresh(ctx context.Context, token string) (Session, error) {
	s, err := a.post(ctx, "/api/auth/refresh", nil, token)
	if err != nil {
		return Session{}, fmt.Errorf("refreshing token: %w", err)
	}
	return s, nil
}

// Logout invalidates token on the server.
func (a *Auth) Logout(ctx context.Context, token string) error {
	err := a.client.do(ctx, request{method: http.MethodPost, path: "/api/auth/logout", token: token})
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

func (a *Auth) post(ctx context.Context, path string, body any, token string) (Session, error) {
	var resp map[string]any
	err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   path,
		body:   body,
		result: &resp,
		token:  token,
	})
	if err != nil {
		return Session{}, err
	}
	return parseSession(resp)
}

// parseSession picks the token and user out of an auth response.
func parseSession(resp map[string]any) (Session, error) {
	var s Session
	for _, key := range tokenKeys {
		v, _ := normalize.Lookup(resp, key)
		if tok, ok := v.(string); ok && tok != "" {
			s.Token = tok
			break
		}
	}
	if s.Token == "" {
		return Session{}, errors.New("response carries no token")
	}

	for _, key := range userKeys {
		v, _ := normalize.Lookup(resp, key)
		raw, ok := v.(map[string]any)
		if !ok {
			continue
		}
		u, err := model.UserFromRaw(raw)
		if err != nil {
			return Session{}, fmt.Errorf("decoding user: %w", err)
		}
		s.User = &u
		break
	}
	return s, nil
}
