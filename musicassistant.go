// Package musicassistant is a Go client for Music Assistant style
// home-media servers. The server speaks a JSON command protocol over a
// WebSocket connection and pushes events for everything that changes:
// this package re-exports the session client, the wire types and the
// HTTP authentication helpers from their subpackages so most consumers
// only import the module root.
package musicassistant

import (
	"context"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
	"github.com/lightforgemedia/go-musicassistant/pkg/auth"
	"github.com/lightforgemedia/go-musicassistant/pkg/client"
)

// Re-export core client types.
type (
	Client          = client.Client
	Option          = client.Option
	Options         = client.Options
	CommandOption   = client.CommandOption
	SubscribeOption = client.SubscribeOption
	EventCallback   = client.EventCallback

	Event           = api.EventMessage
	EventType       = api.EventType
	ServerInfo      = api.ServerInfoMessage
	CommandError    = api.CommandError
	ConnectionState = api.ConnectionState
	Player          = api.Player
	PlayerQueue     = api.PlayerQueue
	User            = api.User
	AuthToken       = api.AuthToken
)

// Re-export error values.
var (
	ErrCannotConnect          = api.ErrCannotConnect
	ErrInvalidURL             = api.ErrInvalidURL
	ErrConnectionFailed       = api.ErrConnectionFailed
	ErrConnectionClosed       = api.ErrConnectionClosed
	ErrInvalidMessage         = api.ErrInvalidMessage
	ErrNotConnected           = api.ErrNotConnected
	ErrInvalidState           = api.ErrInvalidState
	ErrAuthenticationRequired = api.ErrAuthenticationRequired
	ErrAuthenticationFailed   = api.ErrAuthenticationFailed
	ErrLoginFailed            = api.ErrLoginFailed
	ErrUnsupportedSchema      = api.ErrUnsupportedSchema
)

// AuthRequiredSchemaVersion is the first schema version at which the
// server mandates a token.
const AuthRequiredSchemaVersion = api.AuthRequiredSchemaVersion

// New prepares a client for the given base server URL.
func New(serverURL string, opts ...Option) *Client {
	return client.New(serverURL, opts...)
}

// NewWithOptions creates a client from an Options struct.
func NewWithOptions(serverURL string, opts Options) *Client {
	return client.NewWithOptions(serverURL, opts)
}

// DefaultOptions returns client defaults for NewWithOptions.
func DefaultOptions() Options {
	return client.DefaultOptions()
}

// WithLogger, WithAuthToken and friends live in pkg/client; the common
// ones are re-exported here.
var (
	WithLogger     = client.WithLogger
	WithAuthToken  = client.WithAuthToken
	WithHTTPClient = client.WithHTTPClient
	WithTLSConfig  = client.WithTLSConfig
	FilterEvents   = client.FilterEvents
	FilterObjectID = client.FilterObjectID
	RequireSchema  = client.RequireSchema
)

// Login authenticates with username and password over HTTP.
func Login(ctx context.Context, serverURL, username, password string, opts ...auth.Option) (User, string, error) {
	return auth.Login(ctx, serverURL, username, password, opts...)
}

// LoginWithToken logs in and mints a long-lived token in one call.
func LoginWithToken(ctx context.Context, serverURL, username, password, tokenName string, opts ...auth.Option) (User, string, error) {
	return auth.LoginWithToken(ctx, serverURL, username, password, tokenName, opts...)
}

// GetServerInfo probes the unauthenticated /info endpoint.
func GetServerInfo(ctx context.Context, serverURL string, opts ...auth.Option) (*ServerInfo, error) {
	return auth.GetServerInfo(ctx, serverURL, opts...)
}
