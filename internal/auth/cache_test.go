package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func countingAuthorizer(calls *int, tokens ...string) AuthorizerFunc {
	return func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		i := *calls
		*calls++
		if i >= len(tokens) {
			return nil, errors.New("no more tokens")
		}
		return &oauth2.Token{AccessToken: tokens[i]}, nil
	}
}

func TestCacheServesUntilExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	calls := 0
	c := NewCache(countingAuthorizer(&calls, "t1", "t2"))
	c.Clock = clock.Now

	cred, err := c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "t1", cred.Token)
	assert.Equal(t, clock.now.Add(55*time.Minute), cred.ExpiresAt)

	clock.now = clock.now.Add(54 * time.Minute)
	cred, err = c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "t1", cred.Token)
	assert.Equal(t, 1, calls)

	clock.now = clock.now.Add(time.Minute)
	cred, err = c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "t2", cred.Token, "credential at its expiry instant is not reused")
	assert.Equal(t, 2, calls)
}

func TestCacheInvalidate(t *testing.T) {
	calls := 0
	c := NewCache(countingAuthorizer(&calls, "t1", "t2"))

	cred, err := c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "t1", cred.Token)

	c.Invalidate()
	cred, err = c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "t2", cred.Token)
}

func TestCacheRefusalIsUnavailable(t *testing.T) {
	c := NewCache(AuthorizerFunc(func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		return nil, errors.New("user declined")
	}))
	_, err := c.Acquire(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "user declined")

	c = NewCache(AuthorizerFunc(func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		return &oauth2.Token{}, nil
	}))
	_, err = c.Acquire(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = (&Cache{}).Acquire(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCachePassesInteractiveFlag(t *testing.T) {
	var got []bool
	c := NewCache(AuthorizerFunc(func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		got = append(got, interactive)
		return &oauth2.Token{AccessToken: "x"}, nil
	}))
	_, err := c.Acquire(context.Background(), true)
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, got)
}

func TestCacheClampsToTokenExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(AuthorizerFunc(func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "short", Expiry: now.Add(10 * time.Minute)}, nil
	}))
	c.Clock = func() time.Time { return now }

	cred, err := c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), cred.ExpiresAt)

	c.Invalidate()
	c.Authorizer = AuthorizerFunc(func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "stale", Expiry: now.Add(-time.Second)}, nil
	})
	_, err = c.Acquire(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCredentialSetAuthHeader(t *testing.T) {
	req, err := newRequest()
	require.NoError(t, err)
	Credential{Token: "abc"}.SetAuthHeader(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestCodeFromInput(t *testing.T) {
	code, err := codeFromInput("  4/abc  ")
	require.NoError(t, err)
	assert.Equal(t, "4/abc", code)

	code, err = codeFromInput("http://127.0.0.1:5555/?state=s&code=4%2Fxyz&scope=mail")
	require.NoError(t, err)
	assert.Equal(t, "4/xyz", code)

	_, err = codeFromInput("http://127.0.0.1:5555/?state=s")
	assert.Error(t, err)
	_, err = codeFromInput("   ")
	assert.Error(t, err)
}

func TestOAuthAuthorizerMissingClientSecret(t *testing.T) {
	a := NewOAuthAuthorizer(t.TempDir(), nil)
	_, err := a.Authorize(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnavailable)
}

const testClientSecret = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func TestOAuthAuthorizerSilentWithoutTokenFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, clientSecretFile), []byte(testClientSecret), 0o600))

	a := NewOAuthAuthorizer(dir, nil)
	_, err := a.Authorize(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOAuthAuthorizerUsesValidStoredToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, clientSecretFile), []byte(testClientSecret), 0o600))
	stored := &oauth2.Token{AccessToken: "stored", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, saveToken(filepath.Join(dir, tokenFile), stored))

	a := NewOAuthAuthorizer(dir, nil)
	tok, err := a.Authorize(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "stored", tok.AccessToken)

	require.NoError(t, a.Forget())
	require.NoError(t, a.Forget())
	_, err = os.Stat(filepath.Join(dir, tokenFile))
	assert.True(t, os.IsNotExist(err))
}

func newRequest() (*http.Request, error) {
	return http.NewRequest(http.MethodGet, "https://gmail.googleapis.com/", nil)
}

// tokenServer answers refresh-token grants with access tokens "fresh1",
// "fresh2" and so on.
func tokenServer(t *testing.T, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		n := refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"fresh%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeClientSecret(t *testing.T, dir, tokenURL string) {
	t.Helper()
	secret := fmt.Sprintf(`{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":%q,"redirect_uris":["http://localhost"]}}`, tokenURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, clientSecretFile), []byte(secret), 0o600))
}

func TestInvalidateRefreshesStoredGrant(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, &refreshes)
	dir := t.TempDir()
	writeClientSecret(t, dir, srv.URL)
	stored := &oauth2.Token{AccessToken: "revoked", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(50 * time.Minute)}
	require.NoError(t, saveToken(filepath.Join(dir, tokenFile), stored))

	c := NewCache(NewOAuthAuthorizer(dir, nil))

	cred, err := c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "revoked", cred.Token)
	assert.Zero(t, refreshes.Load())

	c.Invalidate()
	cred, err = c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "fresh1", cred.Token)
	assert.Equal(t, int32(1), refreshes.Load())

	saved, err := readToken(filepath.Join(dir, tokenFile))
	require.NoError(t, err)
	assert.Equal(t, "fresh1", saved.AccessToken)
	assert.Equal(t, "r", saved.RefreshToken)

	// served from the cache again, then from the persisted refreshed token
	cred, err = c.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "fresh1", cred.Token)

	c2 := NewCache(NewOAuthAuthorizer(dir, nil))
	cred, err = c2.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "fresh1", cred.Token)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestInvalidateWithoutRefreshTokenNeedsConsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, clientSecretFile), []byte(testClientSecret), 0o600))
	stored := &oauth2.Token{AccessToken: "revoked", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, saveToken(filepath.Join(dir, tokenFile), stored))

	c := NewCache(NewOAuthAuthorizer(dir, nil))
	_, err := c.Acquire(context.Background(), false)
	require.NoError(t, err)

	c.Invalidate()
	_, err = c.Acquire(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = os.Stat(filepath.Join(dir, tokenFile))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireReturnsContextErrorWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCache(AuthorizerFunc(func(ctx context.Context, interactive bool) (*oauth2.Token, error) {
		cancel()
		return nil, fmt.Errorf("%w: refresh token: %w", ErrUnavailable, ctx.Err())
	}))

	_, err := c.Acquire(ctx, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}
