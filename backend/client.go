package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnauthorized is returned when any call answers 401.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrUnavailable is returned for transport failures and 5xx responses.
	ErrUnavailable = errors.New("backend: unavailable")
	// ErrUnexpectedStatus is returned for any other non-2xx response.
	ErrUnexpectedStatus = errors.New("backend: unexpected status")
	// ErrRejected is returned when a 2xx envelope carries status != "success".
	ErrRejected = errors.New("backend: request rejected")
)

const (
	pathAuthStatus    = "/api/auth/status"
	pathAuthGuest     = "/api/auth/guest"
	pathAuthLogin     = "/api/auth/login"
	pathAuthRegister  = "/api/auth/register"
	pathAuthRefresh   = "/api/auth/refresh"
	pathAuthLogout    = "/api/auth/logout"
	pathBalance       = "/api/gaming/roulette/balance"
	pathUpdateBalance = "/api/gaming/roulette/update_balance"
	pathSyncBalance   = "/api/gaming/roulette/sync_balance"

	// demoBalanceCookie is the cookie the server mirrors the demo balance
	// into. It is the lowest-priority balance source after the local store
	// and the restore call.
	demoBalanceCookie = "demo_balance"

	defaultTimeout = 10 * time.Second
)

// Config configures a [Client].
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// HTTPClient overrides the internally constructed client. When set, the
	// caller owns the cookie jar and timeout.
	HTTPClient *http.Client
}

// Client issues requests against one CryptoChecker deployment. It is safe
// for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// NewClient validates cfg.BaseURL and builds a client with a cookie jar, so
// server-set cookies (including the demo balance mirror) survive across
// calls.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("backend: base url must be http or https")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("backend: cookie jar: %w", err)
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Jar:     jar,
			Timeout: timeout,
		}
	}

	return &Client{
		base:      base,
		http:      httpClient,
		userAgent: cfg.UserAgent,
	}, nil
}

// Status calls GET /api/auth/status. The token may be empty for anonymous
// probes.
func (c *Client) Status(ctx context.Context, token string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, pathAuthStatus, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Guest calls GET /api/auth/guest for the server-side guest defaults.
func (c *Client) Guest(ctx context.Context) (*GuestUser, error) {
	var out guestResponse
	if err := c.do(ctx, http.MethodGet, pathAuthGuest, "", nil, &out); err != nil {
		return nil, err
	}
	return &out.GuestUser, nil
}

// Login calls POST /api/auth/login.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	var out AuthResponse
	req := loginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, pathAuthLogin, "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register calls POST /api/auth/register.
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	req := registerRequest{Username: username, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, pathAuthRegister, "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenewToken calls POST /api/auth/refresh. The returned token replaces the
// old one wholesale.
func (c *Client) RenewToken(ctx context.Context, token string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, pathAuthRefresh, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout calls POST /api/auth/logout.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, pathAuthLogout, token, nil, nil)
}

// FetchBalance calls GET /api/gaming/roulette/balance.
func (c *Client) FetchBalance(ctx context.Context, token string) (*BalanceData, error) {
	var out balanceEnvelope
	if err := c.do(ctx, http.MethodGet, pathBalance, token, nil, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" || out.Data == nil {
		return nil, fmt.Errorf("%w: status %q", ErrRejected, out.Status)
	}
	return out.Data, nil
}

// PushBalance calls POST /api/gaming/roulette/update_balance.
func (c *Client) PushBalance(ctx context.Context, token string, balance float64) error {
	var out statusOnly
	req := updateBalanceRequest{Balance: balance}
	if err := c.do(ctx, http.MethodPost, pathUpdateBalance, token, req, &out); err != nil {
		return err
	}
	if out.Status != "success" {
		return fmt.Errorf("%w: status %q", ErrRejected, out.Status)
	}
	return nil
}

// SyncBalance calls POST /api/gaming/roulette/sync_balance. For
// [SyncRestore] the returned data carries the server's balance of record;
// for [SyncSave] frontendBalance must be non-nil.
func (c *Client) SyncBalance(ctx context.Context, token string, action SyncAction, frontendBalance *float64) (*BalanceData, error) {
	var out balanceEnvelope
	req := syncBalanceRequest{Action: action, FrontendBalance: frontendBalance}
	if err := c.do(ctx, http.MethodPost, pathSyncBalance, token, req, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("%w: status %q", ErrRejected, out.Status)
	}
	if out.Data == nil {
		out.Data = &BalanceData{}
	}
	return out.Data, nil
}

// CookieBalance reports the demo balance mirrored into the server's cookie,
// when present and parseable as a non-negative number.
func (c *Client) CookieBalance() (float64, bool) {
	if c == nil || c.http == nil || c.http.Jar == nil {
		return 0, false
	}
	for _, cookie := range c.http.Jar.Cookies(c.base) {
		if cookie.Name != demoBalanceCookie {
			continue
		}
		v, err := strconv.ParseFloat(cookie.Value, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("backend: build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %d on %s", ErrUnexpectedStatus, resp.StatusCode, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnexpectedStatus, path, err)
	}
	return nil
}
