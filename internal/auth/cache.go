// Package auth owns the bearer credential used by the Gmail transport.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrUnavailable means no credential could be obtained: the user declined
// consent, there is no stored grant, or the grant could not be refreshed.
var ErrUnavailable = errors.New("credential unavailable")

// DefaultLifetime is how long a fetched credential is served from the cache.
// Google access tokens live ~60 minutes; we stop using them a little earlier.
const DefaultLifetime = 55 * time.Minute

// Credential is a bearer token and the instant the cache stops serving it.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// SetAuthHeader sets the Authorization header on r.
func (c Credential) SetAuthHeader(r *http.Request) {
	(&oauth2.Token{AccessToken: c.Token, TokenType: "Bearer"}).SetAuthHeader(r)
}

// Authorizer is the consent mechanism that grants access tokens. When
// interactive is false it must not prompt the user.
type Authorizer interface {
	Authorize(ctx context.Context, interactive bool) (*oauth2.Token, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, interactive bool) (*oauth2.Token, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	return f(ctx, interactive)
}

// Refresher is implemented by authorizers that keep their own copy of the
// grant. After ForceRefresh the next Authorize must not hand back the access
// token it returned before.
type Refresher interface {
	ForceRefresh()
}

// Cache serves a cached credential until it expires and asks the Authorizer
// for a new one otherwise.
type Cache struct {
	Authorizer Authorizer
	Lifetime   time.Duration
	Clock      func() time.Time

	mu   sync.Mutex
	cred *Credential
}

// NewCache returns a Cache with the default lifetime.
func NewCache(a Authorizer) *Cache {
	return &Cache{Authorizer: a, Lifetime: DefaultLifetime, Clock: time.Now}
}

// Acquire returns the cached credential when it is still valid. Otherwise it
// requests a new one, prompting the user only when interactive is true.
// Failures wrap ErrUnavailable and are never retried here.
func (c *Cache) Acquire(ctx context.Context, interactive bool) (Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cred != nil && now.Before(c.cred.ExpiresAt) {
		return *c.cred, nil
	}
	c.cred = nil

	if c.Authorizer == nil {
		return Credential{}, fmt.Errorf("%w: no authorizer configured", ErrUnavailable)
	}
	tok, err := c.Authorizer.Authorize(ctx, interactive)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Credential{}, ctxErr
		}
		if errors.Is(err, ErrUnavailable) {
			return Credential{}, err
		}
		return Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: empty access token", ErrUnavailable)
	}

	lifetime := c.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	expires := now.Add(lifetime)
	// never outlive the token itself
	if !tok.Expiry.IsZero() && tok.Expiry.Before(expires) {
		expires = tok.Expiry
	}
	if !expires.After(now) {
		return Credential{}, fmt.Errorf("%w: granted token already expired", ErrUnavailable)
	}
	c.cred = &Credential{Token: tok.AccessToken, ExpiresAt: expires}
	return *c.cred, nil
}

// Invalidate drops the cached credential and, when the Authorizer is a
// Refresher, makes it refresh the grant on the next Acquire. The transport
// calls it when the provider answers 401.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = nil
	if r, ok := c.Authorizer.(Refresher); ok {
		r.ForceRefresh()
	}
}

func (c *Cache) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}
