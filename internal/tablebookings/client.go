// Package tablebookings is a client for the TableBookings restaurant API.
package tablebookings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/tablestaff/internal/lib/logger/sl"
)

const (
	DefaultBaseURL   = "https://apiservice.tablebookings.co.uk/api/v1"
	DefaultAssetBase = "https://apiservice.tablebookings.co.uk"
	defaultUA        = "tablestaff/1.0"
)

// TokenSource supplies the bearer token for protected calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Config struct {
	BaseURL   string
	AssetBase string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	hc        *http.Client
	base      string
	assetBase string
	ua        string
	tokens    TokenSource
	log       *slog.Logger
	now       func() time.Time
}

// New builds a client. tokens may be nil when only Login is used.
func New(cfg Config, tokens TokenSource, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AssetBase == "" {
		cfg.AssetBase = DefaultAssetBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUA
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		hc:        &http.Client{Timeout: cfg.Timeout},
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		assetBase: strings.TrimRight(cfg.AssetBase, "/"),
		ua:        cfg.UserAgent,
		tokens:    tokens,
		log:       log,
		now:       time.Now,
	}
}

// bearer returns the token for a protected call or an AuthError. No request
// is made when this fails.
func (c *Client) bearer(ctx context.Context, op string) (string, error) {
	if c.tokens == nil {
		return "", &AuthError{Op: op, Reason: "no token source"}
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", &AuthError{Op: op, Reason: "no auth token", Err: err}
	}
	if strings.TrimSpace(tok) == "" {
		return "", &AuthError{Op: op, Reason: "no auth token"}
	}
	if tokenExpired(tok, c.now()) {
		return "", &AuthError{Op: op, Reason: "session expired"}
	}
	return tok, nil
}

// tokenExpired reads the exp claim of JWT bearer tokens without verifying
// them. Opaque tokens never count as expired here.
func tokenExpired(tok string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// call performs one round trip and decodes the response envelope. A bare
// JSON object body is treated as the envelope's data.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body any, authed bool) (envelope, error) {
	var token string
	if authed {
		var err error
		if token, err = c.bearer(ctx, op); err != nil {
			return envelope{}, err
		}
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return envelope{}, fmt.Errorf("%s: encode body: %w", op, err)
		}
	}

	status, respBody, err := c.do(ctx, method, path, query, payload, token)
	if err != nil {
		return envelope{}, &RemoteError{Op: op, Category: CategoryTransport, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if status < 200 || status >= 300 {
		rerr := &RemoteError{Op: op, StatusCode: status, Category: statusCategory(status), Message: env.Message}
		if rerr.Category == CategoryUnauthorized {
			return envelope{}, &AuthError{Op: op, Reason: "unauthorized", Err: rerr}
		}
		return envelope{}, rerr
	}
	if decodeErr != nil {
		return envelope{}, &RemoteError{Op: op, StatusCode: status, Category: CategoryDecode, Err: decodeErr}
	}
	if failed(env.Status) {
		return envelope{}, &RemoteError{Op: op, StatusCode: status, Category: CategoryClient, Message: env.Message}
	}
	if len(bytes.TrimSpace(env.Data)) == 0 {
		env.Data = respBody
	}
	return env, nil
}

// failed reports an application-level rejection carried in a 2xx body,
// e.g. {"status": false, "message": "..."}.
func failed(status any) bool {
	switch v := status.(type) {
	case bool:
		return !v
	case string:
		s := strings.ToLower(v)
		return s == "error" || s == "failed" || s == "false"
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, token string) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", c.ua)
	req.Header.Set("x-request-id", reqID)
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	if token != "" {
		req.Header.Set("authorization", "Bearer "+token)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug("api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", reqID),
			sl.Err(err),
		)
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	c.log.Debug("api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", reqID),
		slog.Int("status", res.StatusCode),
		slog.Duration("took", time.Since(start)),
	)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
