package client

import (
	"crypto/tls"
	"log/slog"
	"net/http"
)

type clientConfig struct {
	logger     *slog.Logger
	authToken  string
	httpClient *http.Client
	tlsConfig  *tls.Config
	transport  Transport
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.config.logger = logger
		}
	}
}

// WithAuthToken supplies the token presented during the connection
// handshake. Required for servers with schema version 28 or newer.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.config.authToken = token
	}
}

// WithHTTPClient sets a pre-configured HTTP client used for the
// WebSocket handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.config.httpClient = hc
	}
}

// WithTLSConfig sets the TLS configuration used when connecting over
// wss, e.g. for self-signed certificates.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.config.tlsConfig = cfg
	}
}

// WithTransport injects a pre-built transport instead of dialing the
// server URL. Mainly for tests.
func WithTransport(tr Transport) Option {
	return func(c *Client) {
		c.config.transport = tr
	}
}

// Options contains configuration values for NewWithOptions.
type Options struct {
	Logger     *slog.Logger
	AuthToken  string
	HTTPClient *http.Client
	TLSConfig  *tls.Config
	Transport  Transport
}

// DefaultOptions returns an Options struct populated with library
// defaults.
func DefaultOptions() Options {
	return Options{Logger: slog.Default()}
}

// NewWithOptions creates a client from an Options struct. Equivalent to
// New with the corresponding functional options.
func NewWithOptions(serverURL string, opts Options) *Client {
	var fns []Option
	if opts.Logger != nil {
		fns = append(fns, WithLogger(opts.Logger))
	}
	if opts.AuthToken != "" {
		fns = append(fns, WithAuthToken(opts.AuthToken))
	}
	if opts.HTTPClient != nil {
		fns = append(fns, WithHTTPClient(opts.HTTPClient))
	}
	if opts.TLSConfig != nil {
		fns = append(fns, WithTLSConfig(opts.TLSConfig))
	}
	if opts.Transport != nil {
		fns = append(fns, WithTransport(opts.Transport))
	}
	return New(serverURL, fns...)
}
