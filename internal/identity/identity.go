// Package identity supplies the authenticated user the sync engine acts for.
package identity

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAuthenticated is returned when no user is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// Identity is the signed-in user and the token presented to the remote.
type Identity struct {
	UserID      string
	AccessToken string
}

// Provider resolves the current identity.
type Provider interface {
	Current(ctx context.Context) (Identity, error)
}

// Static is a Provider holding one identity in memory. Sign-in flows replace
// it through SignIn and SignOut.
type Static struct {
	mu sync.RWMutex
	id Identity
}

// NewStatic returns a provider signed in as userID. An empty userID starts
// signed out.
func NewStatic(userID, accessToken string) *Static {
	return &Static{id: Identity{UserID: userID, AccessToken: accessToken}}
}

// Current returns the signed-in identity or ErrNotAuthenticated.
func (s *Static) Current(ctx context.Context) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id.UserID == "" {
		return Identity{}, ErrNotAuthenticated
	}
	return s.id, nil
}

// SignIn replaces the current identity.
func (s *Static) SignIn(userID, accessToken string) {
	s.mu.Lock()
	s.id = Identity{UserID: userID, AccessToken: accessToken}
	s.mu.Unlock()
}

// SignOut clears the current identity.
func (s *Static) SignOut() {
	s.mu.Lock()
	s.id = Identity{}
	s.mu.Unlock()
}
