package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"admissions-portal/portal-backend/internal/session"
)

// tokenResponse is the auth service's session payload
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (t *tokenResponse) session() *session.Session {
	s := &session.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		UserID:       t.User.ID,
		Email:        t.User.Email,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return s
}

// Auth talks to the hosted auth service and keeps the session store current
type Auth struct {
	client *Client
	store  *session.Store
}

// NewAuth creates an auth client that writes sessions into store
func NewAuth(client *Client, store *session.Store) *Auth {
	return &Auth{client: client, store: store}
}

// SignInWithPassword establishes the service account session
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	return a.token(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// RefreshSession exchanges the stored refresh token for a new session
func (a *Auth) RefreshSession(ctx context.Context) (*session.Session, error) {
	refreshToken := a.store.RefreshToken()
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh session: %w", session.ErrNoSession)
	}
	return a.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// SignOut revokes the current session and clears the store
func (a *Auth) SignOut(ctx context.Context) error {
	_, err := a.client.Do(ctx, &Request{Method: http.MethodPost, Path: "/auth/v1/logout"})
	a.store.Clear()
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil
	}
	return err
}

func (a *Auth) token(ctx context.Context, grantType string, body map[string]string) (*session.Session, error) {
	resp, err := a.client.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      "/auth/v1/token",
		Query:     url.Values{"grant_type": {grantType}},
		Body:      body,
		Anonymous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("auth %s grant: %w", grantType, err)
	}

	var payload tokenResponse
	if err := resp.JSON(&payload); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("auth %s grant returned no access token: %w", grantType, session.ErrRefreshFailed)
	}

	s := payload.session()
	a.store.Set(s)
	return s, nil
}
