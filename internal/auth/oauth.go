package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
)

const (
	clientSecretFile = "client_secret.json"
	tokenFile        = "token.json"
)

// DefaultScopes grants read access for sync and full mail access, which
// batchDelete requires.
var DefaultScopes = []string{gmailv1.GmailReadonlyScope, gmailv1.MailGoogleComScope}

// OAuthAuthorizer grants tokens using an installed-app OAuth client:
//   - client credentials at <ConfigDir>/client_secret.json
//   - token cache at <ConfigDir>/token.json
//
// Silent requests reuse or refresh the stored token. Interactive requests fall
// back to the browser consent flow with a loopback redirect.
type OAuthAuthorizer struct {
	ConfigDir       string
	Scopes          []string
	Logger          *slog.Logger
	Prompt          io.Writer
	Input           io.Reader
	OpenBrowser     func(string) error
	RedirectTimeout time.Duration

	mu           sync.Mutex
	forceRefresh bool
}

// NewOAuthAuthorizer returns an authorizer reading from configDir and talking
// to the user over stderr/stdin.
func NewOAuthAuthorizer(configDir string, logger *slog.Logger) *OAuthAuthorizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &OAuthAuthorizer{
		ConfigDir:       configDir,
		Scopes:          DefaultScopes,
		Logger:          logger,
		Prompt:          os.Stderr,
		Input:           os.Stdin,
		RedirectTimeout: 120 * time.Second,
	}
}

// Authorize implements Authorizer.
func (a *OAuthAuthorizer) Authorize(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	path := filepath.Join(a.ConfigDir, tokenFile)
	if stored, err := readToken(path); err == nil {
		if a.refreshPending() {
			// the provider rejected this access token; only the refresh token is usable
			stored.AccessToken = ""
			stored.Expiry = time.Unix(1, 0)
		}
		if stored.AccessToken == "" && stored.RefreshToken == "" {
			_ = os.Remove(path)
			return a.authorizeInteractive(ctx, cfg, path, interactive)
		}
		fresh, err := cfg.TokenSource(ctx, stored).Token()
		if err == nil {
			a.setRefresh(false)
			if fresh.AccessToken != stored.AccessToken {
				if err := saveToken(path, fresh); err != nil {
					a.Logger.WarnContext(ctx, "persist refreshed token", "error", err)
				}
			}
			return fresh, nil
		}
		var rerr *oauth2.RetrieveError
		if !errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: refresh token: %w", ErrUnavailable, err)
		}
		// The grant was revoked or expired: forget it and ask again.
		a.Logger.WarnContext(ctx, "stored token rejected", "error", err)
		_ = os.Remove(path)
	}

	return a.authorizeInteractive(ctx, cfg, path, interactive)
}

func (a *OAuthAuthorizer) authorizeInteractive(ctx context.Context, cfg *oauth2.Config, path string, interactive bool) (*oauth2.Token, error) {
	if !interactive {
		return nil, fmt.Errorf("%w: no usable stored token", ErrUnavailable)
	}

	tok, err := a.tokenFromWeb(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := saveToken(path, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	a.setRefresh(false)
	return tok, nil
}

// ForceRefresh implements Refresher: the next Authorize exchanges the stored
// refresh token instead of reusing the stored access token.
func (a *OAuthAuthorizer) ForceRefresh() {
	a.setRefresh(true)
}

func (a *OAuthAuthorizer) refreshPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.forceRefresh
}

func (a *OAuthAuthorizer) setRefresh(v bool) {
	a.mu.Lock()
	a.forceRefresh = v
	a.mu.Unlock()
}

// Forget removes the stored token so the next interactive request prompts again.
func (a *OAuthAuthorizer) Forget() error {
	err := os.Remove(filepath.Join(a.ConfigDir, tokenFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (a *OAuthAuthorizer) config() (*oauth2.Config, error) {
	credPath := filepath.Join(a.ConfigDir, clientSecretFile)
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}
	scopes := a.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	return cfg, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tokenFromWeb runs a loopback HTTP server to capture the auth code. If that
// fails or times out, it falls back to manual paste (code or URL).
func (a *OAuthAuthorizer) tokenFromWeb(ctx context.Context, base *oauth2.Config) (*oauth2.Token, error) {
	cfg := *base
	state := uuid.NewString()

	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		port := ln.Addr().(*net.TCPAddr).Port
		cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", port)

		mux := http.NewServeMux()
		srv := &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if e := q.Get("error"); e != "" {
				http.Error(w, "Authorization was not granted.", http.StatusForbidden)
				select {
				case resCh <- result{err: fmt.Errorf("consent declined: %s", e)}:
				default:
				}
				return
			}
			code := q.Get("code")
			if code == "" || q.Get("state") != state {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case resCh <- result{code: code}:
			default:
			}
		})
		go func() { _ = srv.Serve(ln) }()
		defer func() { _ = srv.Shutdown(context.Background()) }()

		authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		a.say("Open this URL in your browser to authorize access:")
		a.say(authURL)
		if a.OpenBrowser != nil {
			if err := a.OpenBrowser(authURL); err != nil {
				a.Logger.DebugContext(ctx, "open browser", "error", err)
			}
		}
		a.say(fmt.Sprintf("Waiting for redirect on %s …", cfg.RedirectURL))

		timeout := a.RedirectTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-resCh:
			if r.err != nil {
				return nil, r.err
			}
			return exchange(ctx, &cfg, r.code)
		case <-timer.C:
			a.say("Timeout waiting for redirect; falling back to manual paste.")
		}
	}

	// Manual paste keeps the loopback redirect URL so the exchange matches
	// what the consent screen was issued for.
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	a.say("Open this URL in your browser to authorize access:")
	a.say(authURL)
	a.say("")
	a.say("Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")

	code, err := a.readCode()
	if err != nil {
		return nil, err
	}
	return exchange(ctx, &cfg, code)
}

func (a *OAuthAuthorizer) readCode() (string, error) {
	in := a.Input
	if in == nil {
		return "", errors.New("no input available for authorization code")
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read auth code: %w", err)
		}
		return "", errors.New("empty authorization code")
	}
	return codeFromInput(sc.Text())
}

// codeFromInput accepts either a bare code or a pasted redirect URL.
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	c := u.Query().Get("code")
	if c == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return c, nil
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

func (a *OAuthAuthorizer) say(line string) {
	if a.Prompt == nil {
		return
	}
	fmt.Fprintln(a.Prompt, line)
}
