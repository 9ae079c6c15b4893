package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when no session has been established yet
var ErrNoSession = errors.New("no active session")

// Session is the credential pair issued by the hosted auth service
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
}

// Valid reports whether the session carries an access token that has not expired at now
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt)
}

// TokenExpiry reads the exp claim of an access token without verifying its signature.
// The token is verified by the hosted backend on every request; locally we only need
// to know when to refresh it.
func TokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim: %w", jwt.ErrTokenRequiredClaimMissing)
	}
	return claims.ExpiresAt.Time, nil
}

// Store holds the current session shared by every outbound backend call
type Store struct {
	mu      sync.RWMutex
	current *Session
	now     func() time.Time
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Set replaces the current session. A zero ExpiresAt is filled from the token's exp claim.
func (s *Store) Set(sess *Session) {
	if sess != nil && sess.ExpiresAt.IsZero() && sess.AccessToken != "" {
		if exp, err := TokenExpiry(sess.AccessToken); err == nil {
			sess.ExpiresAt = exp
		}
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

// Current returns a copy of the current session
func (s *Store) Current() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, ErrNoSession
	}
	return *s.current, nil
}

// AccessToken returns the bearer token for outbound requests, or "" when signed out
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.AccessToken
}

// RefreshToken returns the refresh token of the current session
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.RefreshToken
}

// Valid reports whether the current session is usable right now
func (s *Store) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Valid(s.now())
}

// ExpiresWithin reports whether the current session expires inside the given window.
// A missing session counts as expiring.
func (s *Store) ExpiresWithin(window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return true
	}
	if s.current.ExpiresAt.IsZero() {
		return false
	}
	return !s.now().Add(window).Before(s.current.ExpiresAt)
}

// Clear drops the current session
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
