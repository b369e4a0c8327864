package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"unclutter/internal/auth"
	"unclutter/internal/model"
	"unclutter/internal/rate"
)

// DefaultBaseURL is the Gmail v1 REST root for the signed-in user.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me/"

// Credentials is the credential cache as seen by the transport.
type Credentials interface {
	Acquire(ctx context.Context, interactive bool) (auth.Credential, error)
	Invalidate()
}

// API is the narrow Gmail surface the sync and delete flows need.
type API interface {
	ListPage(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	GetMetadata(ctx context.Context, id string, headers []string) (model.MessageSummary, error)
	BatchDelete(ctx context.Context, ids []string) error
	MessageBody(ctx context.Context, id string) (string, error)
}

// Transport performs authenticated JSON calls against the Gmail REST API and
// maps failures onto the package's error kinds.
type Transport struct {
	BaseURL string
	HTTP    *http.Client
	Creds   Credentials
	Limiter rate.Limiter
	Logger  *slog.Logger
}

// NewTransport returns a Transport against DefaultBaseURL.
func NewTransport(creds Credentials, limiter rate.Limiter, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Transport{
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Creds:   creds,
		Limiter: limiter,
		Logger:  logger,
	}
}

// Call sends one request. endpoint is relative to BaseURL. A non-nil body is
// sent as JSON. A successful response with an empty body yields (nil, nil).
func (t *Transport) Call(ctx context.Context, method, endpoint string, query url.Values, body any) (json.RawMessage, error) {
	if t.Creds == nil {
		return nil, &RequestError{Kind: ErrAuthRequired, Endpoint: endpoint, Message: "no credential source"}
	}
	cred, err := t.Creds.Acquire(ctx, false)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ctxErr)
		}
		return nil, &RequestError{Kind: ErrAuthRequired, Endpoint: endpoint, Message: err.Error()}
	}

	target, err := t.resolve(endpoint, query)
	if err != nil {
		return nil, fmt.Errorf("build url for %s: %w", endpoint, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("new request %s: %w", endpoint, err)
	}
	cred.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := t.client().Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ctxErr)
		}
		return nil, &RequestError{Kind: ErrServiceUnavailable, Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ctxErr)
		}
		return nil, &RequestError{Kind: ErrServiceUnavailable, Status: resp.StatusCode, Endpoint: endpoint, Message: err.Error()}
	}
	t.logger().DebugContext(ctx, "gmail call",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed", time.Since(start))

	return t.classify(resp, endpoint, data)
}

func (t *Transport) classify(resp *http.Response, endpoint string, data []byte) (json.RawMessage, error) {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		if !isJSON(resp.Header.Get("Content-Type"), data) {
			return nil, &RequestError{Kind: ErrProtocol, Status: status, Endpoint: endpoint,
				Message: "content type " + resp.Header.Get("Content-Type")}
		}
		return json.RawMessage(data), nil
	case status == http.StatusUnauthorized:
		t.Creds.Invalidate()
		return nil, &RequestError{Kind: ErrAuthRequired, Status: status, Endpoint: endpoint, Message: providerMessage(resp, data)}
	case status == http.StatusForbidden:
		return nil, &RequestError{Kind: ErrPermissionDenied, Status: status, Endpoint: endpoint, Message: providerMessage(resp, data)}
	case status == http.StatusTooManyRequests:
		return nil, &RequestError{Kind: ErrRateLimited, Status: status, Endpoint: endpoint, Message: providerMessage(resp, data)}
	case status == http.StatusInternalServerError, status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return nil, &RequestError{Kind: ErrServiceUnavailable, Status: status, Endpoint: endpoint, Message: providerMessage(resp, data)}
	default:
		return nil, &RequestError{Kind: ErrRequestFailed, Status: status, Endpoint: endpoint, Message: providerMessage(resp, data)}
	}
}

// providerMessage extracts error.message from a Google API error body.
func providerMessage(resp *http.Response, data []byte) string {
	probe := &http.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
	var gerr *googleapi.Error
	if errors.As(googleapi.CheckResponse(probe), &gerr) {
		return gerr.Message
	}
	return ""
}

func isJSON(contentType string, data []byte) bool {
	if contentType == "" {
		return json.Valid(data)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func (t *Transport) resolve(endpoint string, query url.Values) (string, error) {
	base := t.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base + strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (t *Transport) client() *http.Client {
	if t.HTTP != nil {
		return t.HTTP
	}
	return http.DefaultClient
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Client implements API on top of a Transport, retrying transient failures.
type Client struct {
	Transport *Transport
	Retry     *Retrier
}

// NewClient returns a Client with the default retry policy.
func NewClient(t *Transport) *Client {
	return &Client{Transport: t, Retry: NewRetrier(t.Logger)}
}

var _ API = (*Client)(nil)
