// Package connection owns the persistent WebSocket link to the server.
// It frames and parses JSON messages and exposes the send/receive
// primitives the client session builds on. A Connection carries exactly
// one duplex stream; receive must have a single consumer.
package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
)

// WebsocketURL derives the WebSocket endpoint from a base server URL,
// e.g. "http://host:8095" -> "ws://host:8095/ws".
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", api.ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", api.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", api.ErrInvalidURL, serverURL)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	}
	return u.String(), nil
}

// Connection is a WebSocket connection to one server.
type Connection struct {
	wsURL      string
	logger     *slog.Logger
	httpClient *http.Client

	mu   sync.Mutex
	conn *websocket.Conn
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger used for transport-level diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a pre-configured HTTP client used for the WebSocket
// handshake, e.g. one carrying a custom TLS configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Connection) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTLSConfig is a shorthand for WithHTTPClient with the given TLS
// configuration applied to a fresh transport.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Connection) {
		if cfg != nil {
			c.httpClient = &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
		}
	}
}

// New prepares a connection to the given base server URL. No I/O happens
// until Connect.
func New(serverURL string, opts ...Option) (*Connection, error) {
	wsURL, err := WebsocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		wsURL:      wsURL,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connected reports whether the connection is currently live.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the server and reads exactly one handshake frame, which
// must be the server info message.
func (c *Connection) Connect(ctx context.Context) (*api.ServerInfoMessage, error) {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: already connected", api.ErrInvalidState)
	}
	c.mu.Unlock()

	c.logger.Debug("connecting", "url", c.wsURL)
	conn, resp, err := websocket.Dial(ctx, c.wsURL, &websocket.DialOptions{
		HTTPClient:      c.httpClient,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s failed: %v (status %s)", api.ErrCannotConnect, c.wsURL, err, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial %s failed: %v", api.ErrCannotConnect, c.wsURL, err)
	}
	// The server streams full state dumps; no frame size cap.
	conn.SetReadLimit(-1)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	msg, err := c.ReceiveMessage(ctx)
	if err != nil {
		c.Close()
		if errors.Is(err, api.ErrInvalidMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no handshake received: %v", api.ErrCannotConnect, err)
	}
	info, ok := msg.(*api.ServerInfoMessage)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("%w: expected server info handshake, got %T", api.ErrInvalidMessage, msg)
	}
	c.logger.Debug("connected",
		"server_version", info.ServerVersion,
		"schema_version", info.SchemaVersion)
	return info, nil
}

// SendMessage serializes one message and writes it as a single frame.
func (c *Connection) SendMessage(ctx context.Context, msg any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return api.ErrNotConnected
	}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		return fmt.Errorf("%w: write failed: %v", api.ErrConnectionClosed, err)
	}
	return nil
}

// ReceiveMessage blocks until one full frame is available and parses it.
// It returns an error wrapping ErrConnectionClosed when the peer closes
// the connection and ErrInvalidMessage for an unparseable frame; the
// latter leaves the connection usable so the caller can keep reading.
func (c *Connection) ReceiveMessage(ctx context.Context) (any, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, api.ErrNotConnected
	}

	typ, data, err := conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		status := websocket.CloseStatus(err)
		if status != -1 || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", api.ErrConnectionClosed, err)
		}
		return nil, fmt.Errorf("%w: %v", api.ErrConnectionFailed, err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: received non-text frame", api.ErrInvalidMessage)
	}
	return api.ParseMessage(data)
}

// Close releases the underlying stream. Safe to call from error paths and
// idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.logger.Debug("closing connection")
	return conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
