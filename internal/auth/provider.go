// Package auth is the boundary to the external identity provider. Session
// validation itself is delegated: the service runs behind an authenticating
// proxy that injects trusted identity headers.
package auth

import (
	"errors"
	"net/http"
)

// ErrUnauthenticated is returned when no identity can be resolved
var ErrUnauthenticated = errors.New("unauthenticated")

// DemoUserID is the placeholder identity substituted in development mode
const DemoUserID = "demo-user"

// Identity is what the provider knows about the caller. Role here is a
// provider claim; the store's role column is authoritative for
// authorization decisions (claims are only written into the store at sync).
type Identity struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Role      string
}

// Provider resolves the caller's identity from an incoming request
type Provider interface {
	Identify(r *http.Request) (*Identity, error)
}

// HeaderProvider trusts identity headers set by the fronting proxy
type HeaderProvider struct{}

// Identify reads the proxy-injected identity headers
func (HeaderProvider) Identify(r *http.Request) (*Identity, error) {
	userID := r.Header.Get("X-Auth-User-Id")
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return &Identity{
		UserID:    userID,
		Email:     r.Header.Get("X-Auth-Email"),
		FirstName: r.Header.Get("X-Auth-First-Name"),
		LastName:  r.Header.Get("X-Auth-Last-Name"),
		Role:      r.Header.Get("X-Auth-Role"),
	}, nil
}

// DemoIdentity returns the fixed development-mode identity
func DemoIdentity() *Identity {
	return &Identity{
		UserID:    DemoUserID,
		Email:     "demo@example.com",
		FirstName: "Utilisateur",
		LastName:  "Démo",
		Role:      "client",
	}
}

// StaticProvider returns a fixed identity (or error); used in tests
type StaticProvider struct {
	Identity *Identity
	Err      error
}

// Identify returns the configured identity
func (p StaticProvider) Identify(*http.Request) (*Identity, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Identity == nil {
		return nil, ErrUnauthenticated
	}
	return p.Identity, nil
}
