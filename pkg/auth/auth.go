// Package auth implements the server's HTTP authentication endpoints:
// username/password login, long-lived token management and the
// unauthenticated server info probe. All calls are stateless
// request/response exchanges, independent of the WebSocket session.
package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
)

const defaultHTTPTimeout = 30 * time.Second

type settings struct {
	httpClient *http.Client
	owned      bool
}

// Option configures a single auth call.
type Option func(*settings)

// WithHTTPClient uses a caller-provided HTTP client instead of creating
// one for the duration of the call.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		if hc != nil {
			s.httpClient = hc
			s.owned = false
		}
	}
}

// WithTLSConfig creates the per-call HTTP client with the given TLS
// configuration, for servers using self-signed or private-CA
// certificates.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *settings) {
		if cfg != nil {
			s.httpClient = &http.Client{
				Timeout:   defaultHTTPTimeout,
				Transport: &http.Transport{TLSClientConfig: cfg},
			}
			s.owned = true
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		owned:      true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *settings) release() {
	if s.owned {
		s.httpClient.CloseIdleConnections()
	}
}

func endpoint(serverURL, path string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", api.ErrInvalidURL, serverURL)
	}
	return strings.TrimSuffix(u.String(), "/") + path, nil
}

// request performs one JSON exchange. authFailure is the error returned
// on a 401 response; other non-2xx statuses map to ErrCannotConnect.
func request(ctx context.Context, s *settings, method, rawURL, token string, body, out any, authFailure error) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrInvalidURL, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrCannotConnect, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return authFailure
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d", api.ErrCannotConnect, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", api.ErrInvalidMessage, err)
	}
	return nil
}

// Login authenticates with username and password and returns the user
// plus a short-lived access token. Bad credentials yield ErrLoginFailed.
func Login(ctx context.Context, serverURL, username, password string, opts ...Option) (api.User, string, error) {
	s := newSettings(opts)
	defer s.release()

	rawURL, err := endpoint(serverURL, "/auth/login")
	if err != nil {
		return api.User{}, "", err
	}
	var resp struct {
		User        api.User `json:"user"`
		AccessToken string   `json:"access_token"`
	}
	body := map[string]string{"username": username, "password": password}
	loginErr := fmt.Errorf("%w: invalid username or password", api.ErrLoginFailed)
	if err := request(ctx, s, http.MethodPost, rawURL, "", body, &resp, loginErr); err != nil {
		return api.User{}, "", err
	}
	return resp.User, resp.AccessToken, nil
}

// CreateLongLivedToken exchanges a valid access token for a durable,
// named token the caller persists for later connections.
func CreateLongLivedToken(ctx context.Context, serverURL, accessToken, name string, opts ...Option) (string, error) {
	s := newSettings(opts)
	defer s.release()

	rawURL, err := endpoint(serverURL, "/auth/tokens")
	if err != nil {
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"name": name, "is_long_lived": true}
	authErr := fmt.Errorf("%w: invalid or expired access token", api.ErrAuthenticationFailed)
	if err := request(ctx, s, http.MethodPost, rawURL, accessToken, body, &resp, authErr); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// GetCurrentUser returns the user the access token belongs to.
func GetCurrentUser(ctx context.Context, serverURL, accessToken string, opts ...Option) (api.User, error) {
	s := newSettings(opts)
	defer s.release()

	rawURL, err := endpoint(serverURL, "/auth/me")
	if err != nil {
		return api.User{}, err
	}
	var user api.User
	authErr := fmt.Errorf("%w: invalid or expired access token", api.ErrAuthenticationFailed)
	if err := request(ctx, s, http.MethodGet, rawURL, accessToken, nil, &user, authErr); err != nil {
		return api.User{}, err
	}
	return user, nil
}

// ListTokens returns all token records of the current user.
func ListTokens(ctx context.Context, serverURL, accessToken string, opts ...Option) ([]api.AuthToken, error) {
	s := newSettings(opts)
	defer s.release()

	rawURL, err := endpoint(serverURL, "/auth/tokens")
	if err != nil {
		return nil, err
	}
	var tokens []api.AuthToken
	authErr := fmt.Errorf("%w: invalid or expired access token", api.ErrAuthenticationFailed)
	if err := request(ctx, s, http.MethodGet, rawURL, accessToken, nil, &tokens, authErr); err != nil {
		return nil, err
	}
	return tokens, nil
}

// RevokeToken revokes the token with the given id.
func RevokeToken(ctx context.Context, serverURL, accessToken, tokenID string, opts ...Option) error {
	s := newSettings(opts)
	defer s.release()

	rawURL, err := endpoint(serverURL, "/auth/tokens/"+url.PathEscape(tokenID))
	if err != nil {
		return err
	}
	authErr := fmt.Errorf("%w: invalid or expired access token", api.ErrAuthenticationFailed)
	return request(ctx, s, http.MethodDelete, rawURL, accessToken, nil, nil, authErr)
}

// LoginWithToken logs in with username/password and immediately creates a
// long-lived token with the given name. If either step fails, that step's
// error is returned and no token is produced.
func LoginWithToken(ctx context.Context, serverURL, username, password, tokenName string, opts ...Option) (api.User, string, error) {
	user, accessToken, err := Login(ctx, serverURL, username, password, opts...)
	if err != nil {
		return api.User{}, "", err
	}
	token, err := CreateLongLivedToken(ctx, serverURL, accessToken, tokenName, opts...)
	if err != nil {
		return api.User{}, "", err
	}
	return user, token, nil
}

// GetServerInfo fetches the unauthenticated /info endpoint, useful to
// probe availability and schema version before connecting.
func GetServerInfo(ctx context.Context, serverURL string, opts ...Option) (*api.ServerInfoMessage, error) {
	s := newSettings(opts)
	defer s.release()

	rawURL, err := endpoint(serverURL, "/info")
	if err != nil {
		return nil, err
	}
	var info api.ServerInfoMessage
	if err := request(ctx, s, http.MethodGet, rawURL, "", nil, &info, api.ErrCannotConnect); err != nil {
		return nil, err
	}
	return &info, nil
}
