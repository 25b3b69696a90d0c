// Package client implements the session against a Music Assistant style
// home-media server: it owns the connect/handshake/listen/disconnect
// lifecycle, correlates commands with their results over one shared
// WebSocket connection and fans server events out to subscribers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
	"github.com/lightforgemedia/go-musicassistant/pkg/connection"
)

// Transport is the framed message exchange the session runs on. Satisfied
// by *connection.Connection; tests inject their own.
type Transport interface {
	Connect(ctx context.Context) (*api.ServerInfoMessage, error)
	SendMessage(ctx context.Context, msg any) error
	ReceiveMessage(ctx context.Context) (any, error)
	Close() error
	Connected() bool
}

type sessionState string

const (
	stateDisconnected sessionState = "disconnected"
	stateConnecting   sessionState = "connecting"
	stateConnected    sessionState = "connected"
	stateListening    sessionState = "listening"
)

// Client is a session with one server. Create with New, then Connect and
// StartListening. Safe for concurrent use; SendCommand may be called from
// any number of goroutines while one goroutine runs StartListening.
type Client struct {
	serverURL string
	config    clientConfig

	registry   *pendingRegistry
	dispatcher *eventDispatcher

	// Command namespaces mirroring the server's command surface.
	Players  *Players
	Music    *Music
	Metadata *Metadata

	mu         sync.Mutex
	state      sessionState
	conn       Transport
	serverInfo *api.ServerInfoMessage
	loopCancel context.CancelFunc
	closed     bool
}

// New prepares a client for the given base server URL. No I/O happens
// until Connect.
func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		config: clientConfig{
			logger: slog.Default(),
		},
		state: stateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = newPendingRegistry(c.config.logger)
	c.dispatcher = newEventDispatcher(c.config.logger)
	c.conn = c.config.transport
	c.Players = newPlayers(c)
	c.Music = &Music{client: c}
	c.Metadata = &Metadata{client: c}
	return c
}

// ServerInfo returns the handshake snapshot, or nil before Connect.
func (c *Client) ServerInfo() *api.ServerInfoMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Connected reports whether the underlying connection is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn != nil && conn.Connected()
}

// Connect opens the connection and performs the handshake. The server's
// first frame populates ServerInfo. If the advertised schema version
// mandates authentication and no token was supplied, Connect returns
// ErrAuthenticationRequired without tearing the connection down; the
// caller decides whether to Close. A supplied token is presented to the
// server before Connect returns; rejection surfaces as
// ErrAuthenticationFailed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: client is closed", api.ErrInvalidState)
	}
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: already connected", api.ErrInvalidState)
	}
	c.state = stateConnecting
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		copts := []connection.Option{connection.WithLogger(c.config.logger)}
		if c.config.httpClient != nil {
			copts = append(copts, connection.WithHTTPClient(c.config.httpClient))
		}
		if c.config.tlsConfig != nil {
			copts = append(copts, connection.WithTLSConfig(c.config.tlsConfig))
		}
		built, err := connection.New(c.serverURL, copts...)
		if err != nil {
			c.setState(stateDisconnected)
			return err
		}
		conn = built
	}

	info, err := conn.Connect(ctx)
	if err != nil {
		c.setState(stateDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.serverInfo = info
	c.mu.Unlock()

	if info.SchemaVersion >= api.AuthRequiredSchemaVersion && c.config.authToken == "" {
		// Connection stays open so the caller can decide whether to
		// tear down or close and retry with a token.
		c.setState(stateConnected)
		return fmt.Errorf("%w: server schema version %d requires a token",
			api.ErrAuthenticationRequired, info.SchemaVersion)
	}

	if c.config.authToken != "" {
		if err := c.authenticate(ctx); err != nil {
			c.setState(stateConnected)
			return err
		}
	}

	c.setState(stateConnected)
	c.config.logger.Info("connected to server",
		"url", c.serverURL,
		"server_version", info.ServerVersion,
		"schema_version", info.SchemaVersion)
	return nil
}

// authenticate presents the auth token right after the handshake and
// waits for the server's verdict. The listen loop is not running yet, so
// frames are consumed here; events arriving before the verdict are
// dispatched as usual.
func (c *Client) authenticate(ctx context.Context) error {
	id, slot := c.registry.register("auth")
	msg := &api.CommandMessage{
		MessageID: id,
		Command:   "auth",
		Args:      map[string]any{"token": c.config.authToken},
	}
	if err := c.conn.SendMessage(ctx, msg); err != nil {
		c.registry.discard(id)
		return err
	}
	for {
		select {
		case res := <-slot:
			if res.err == nil {
				return nil
			}
			var cmdErr *api.CommandError
			if errors.As(res.err, &cmdErr) {
				return fmt.Errorf("%w: server rejected token: %s", api.ErrAuthenticationFailed, cmdErr.Code)
			}
			return res.err
		default:
		}
		in, err := c.conn.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, api.ErrInvalidMessage) {
				c.config.logger.Warn("dropping invalid message during authentication", "error", err)
				continue
			}
			c.registry.discard(id)
			return err
		}
		c.handleMessage(in)
	}
}

// StartListening runs the read loop: the single consumer of the
// connection's message sequence. It blocks until the connection ends.
// Every frame either resolves a pending command or is dispatched as an
// event. On exit all outstanding commands are resolved with
// ErrConnectionClosed and subscribers receive a connection_state_changed
// event. A shutdown initiated by Close or ctx returns nil; a connection
// dropped by the server or a transport fault returns the cause.
func (c *Client) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateListening {
		c.mu.Unlock()
		return fmt.Errorf("%w: already listening", api.ErrInvalidState)
	}
	if c.state != stateConnected || c.conn == nil {
		c.mu.Unlock()
		return api.ErrNotConnected
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel
	c.state = stateListening
	conn := c.conn
	c.mu.Unlock()
	defer cancel()

	c.config.logger.Debug("listen loop started")
	c.dispatcher.dispatch(connectionStateEvent(api.ConnectionStateConnected))

	var cause error
	for {
		msg, err := conn.ReceiveMessage(loopCtx)
		if err != nil {
			if errors.Is(err, api.ErrInvalidMessage) {
				c.config.logger.Warn("dropping invalid message", "error", err)
				continue
			}
			cause = err
			break
		}
		c.handleMessage(msg)
	}

	c.mu.Lock()
	c.state = stateDisconnected
	closed := c.closed
	c.mu.Unlock()

	c.registry.resolveAll(api.ErrConnectionClosed)
	c.dispatcher.dispatch(connectionStateEvent(api.ConnectionStateDisconnected))
	c.config.logger.Info("listen loop ended", "cause", cause)

	if closed || loopCtx.Err() != nil {
		return nil
	}
	return cause
}

// handleMessage demultiplexes one inbound frame: results go to the
// pending-request registry, events to the dispatcher.
func (c *Client) handleMessage(msg any) {
	switch m := msg.(type) {
	case *api.SuccessResultMessage:
		c.registry.succeed(m.MessageID, m.Result)
	case *api.ErrorResultMessage:
		c.registry.fail(m.MessageID, m.ErrorCode, m.Details)
	case *api.EventMessage:
		c.dispatcher.dispatch(m)
	case *api.ServerInfoMessage:
		c.config.logger.Warn("unexpected server info message after handshake")
	default:
		c.config.logger.Warn("unhandled message", "type", fmt.Sprintf("%T", msg))
	}
}

// commandOptions carries per-command modifiers.
type commandOptions struct {
	requireSchema int
}

// CommandOption modifies a single SendCommand call.
type CommandOption func(*commandOptions)

// RequireSchema fails the command immediately with ErrUnsupportedSchema,
// without writing a frame, when the connected server's schema version is
// lower than required.
func RequireSchema(version int) CommandOption {
	return func(o *commandOptions) {
		o.requireSchema = version
	}
}

// SendCommand sends one command and blocks until its correlated result,
// ctx cancellation or connection loss. Server-side failure for this
// specific command is returned as a *api.CommandError. Cancelling the
// wait does not cancel the command server-side; a result that still
// arrives is resolved into the registry and discarded.
func (c *Client) SendCommand(ctx context.Context, command string, args map[string]any, opts ...CommandOption) (json.RawMessage, error) {
	var co commandOptions
	for _, opt := range opts {
		opt(&co)
	}

	c.mu.Lock()
	conn := c.conn
	info := c.serverInfo
	st := c.state
	c.mu.Unlock()

	if conn == nil || info == nil || (st != stateConnected && st != stateListening) {
		return nil, api.ErrNotConnected
	}
	if co.requireSchema > 0 && info.SchemaVersion < co.requireSchema {
		return nil, fmt.Errorf("%w: command %q requires schema %d, server has %d",
			api.ErrUnsupportedSchema, command, co.requireSchema, info.SchemaVersion)
	}

	id, slot := c.registry.register(command)
	msg := &api.CommandMessage{MessageID: id, Command: command, Args: args}
	c.config.logger.Debug("sending command", "message_id", id, "command", command)
	if err := conn.SendMessage(ctx, msg); err != nil {
		c.registry.discard(id)
		return nil, err
	}

	select {
	case res := <-slot:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GenericCommand sends a command and decodes its result payload into T.
// A null or absent result yields a zero T.
func GenericCommand[T any](cli *Client, ctx context.Context, command string, args map[string]any, opts ...CommandOption) (*T, error) {
	raw, err := cli.SendCommand(ctx, command, args, opts...)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return new(T), nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: decode %q result into %T: %v", api.ErrInvalidMessage, command, *out, err)
	}
	return out, nil
}

// Subscribe registers a callback for server events, optionally narrowed
// with FilterEvents and FilterObjectID. The returned func removes exactly
// this subscription and is safe to call more than once.
func (c *Client) Subscribe(cb EventCallback, opts ...SubscribeOption) (unsubscribe func()) {
	return c.dispatcher.subscribe(cb, opts...)
}

// Close shuts the session down: the listen loop is cancelled, all
// outstanding commands resolve with ErrConnectionClosed and the transport
// is released. Idempotent and safe from error paths.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.loopCancel
	conn := c.conn
	wasListening := c.state == stateListening
	c.state = stateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if !wasListening {
		// No listen loop around to do teardown on our behalf.
		c.registry.resolveAll(api.ErrConnectionClosed)
	}
	c.config.logger.Debug("client closed")
	return err
}

func (c *Client) setState(st sessionState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func connectionStateEvent(state api.ConnectionState) *api.EventMessage {
	data, _ := json.Marshal(state)
	return &api.EventMessage{Event: api.EventConnectionStateChanged, Data: data}
}
