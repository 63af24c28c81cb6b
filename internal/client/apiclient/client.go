// Package apiclient is a thin JSON client for the otpauth HTTP API. The
// session cookie set by verify/login is kept in an in-memory cookie jar.
package apiclient

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
	"strings"
	"time"
)

// ErrNotLoggedIn is returned by session calls made before verify or login.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response decoded from the server's {"message"} body.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

type Client struct {
	base *url.URL
	http *http.Client
}

func New(serverURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url: unsupported scheme %q", base.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{base: base, http: &http.Client{Jar: jar, Timeout: timeout}}, nil
}

type messageBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (c *Client) Signup(ctx context.Context, email, username, password string) (string, error) {
	var out messageBody
	err := c.do(ctx, http.MethodPost, "/auth/signup", map[string]string{
		"email": email, "username": username, "password": password,
	}, &out)
	return out.Message, err
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	var out messageBody
	err := c.do(ctx, http.MethodPost, "/auth/verify-otp", map[string]string{"email": email, "otp": code}, &out)
	return out.Message, err
}

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out messageBody
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &out)
	return out.Message, err
}

func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/current_user", nil, &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

// Logout asks the server to clear the session cookie. The jar honours the
// expiring Set-Cookie, so later session calls fail with 401.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var mb messageBody
		_ = json.Unmarshal(data, &mb)
		apiErr := &APIError{Status: resp.StatusCode, Message: mb.Message, Fields: mb.Errors}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized && path != "/auth/login" {
			return fmt.Errorf("%w: %w", ErrNotLoggedIn, apiErr)
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
