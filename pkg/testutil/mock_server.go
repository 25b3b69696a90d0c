// Package testutil provides an in-process mock home-media server
// speaking the real wire protocol: the WebSocket command endpoint with
// handshake, authentication and event push, plus the HTTP auth
// endpoints. Used by the library's own tests and usable by consumers.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/cskr/pubsub"
	"github.com/google/uuid"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
)

const eventsTopic = "events"

// CommandHandler produces the result (or error) for one command. Handlers
// run on their own goroutine per command, so a handler may sleep to force
// out-of-order responses.
type CommandHandler func(args map[string]any) (any, error)

type tokenRecord struct {
	record api.AuthToken
	secret string
	user   api.User
}

// MockServer is an httptest-backed mock server instance.
type MockServer struct {
	Server *httptest.Server
	URL    string // base http:// URL
	WSURL  string // ws:// URL of the command endpoint

	SchemaVersion    int
	MinSchemaVersion int
	ServerVersion    string
	ServerID         string
	Username         string
	Password         string

	bus *pubsub.PubSub

	mu           sync.Mutex
	tokens       map[string]*tokenRecord // keyed by secret
	handlers     map[string]CommandHandler
	conns        []*websocket.Conn
	loginCalls   int
	tokenCreates int
}

// MockOption configures a MockServer.
type MockOption func(*MockServer)

// WithSchemaVersion sets the schema version advertised in the handshake.
func WithSchemaVersion(version int) MockOption {
	return func(ms *MockServer) {
		ms.SchemaVersion = version
	}
}

// WithCredentials sets the accepted username/password pair.
func WithCredentials(username, password string) MockOption {
	return func(ms *MockServer) {
		ms.Username = username
		ms.Password = password
	}
}

// WithServerVersion sets the server version string in the handshake.
func WithServerVersion(version string) MockOption {
	return func(ms *MockServer) {
		ms.ServerVersion = version
	}
}

// NewMockServer starts a mock server. Callers must shut it down via
// Close; in tests, register that with t.Cleanup.
func NewMockServer(opts ...MockOption) *MockServer {
	ms := &MockServer{
		SchemaVersion:    api.AuthRequiredSchemaVersion,
		MinSchemaVersion: 24,
		ServerVersion:    "2.7.0-mock",
		ServerID:         uuid.NewString(),
		Username:         "admin",
		Password:         "secret",
		bus:              pubsub.New(32),
		tokens:           make(map[string]*tokenRecord),
		handlers:         make(map[string]CommandHandler),
	}
	for _, opt := range opts {
		opt(ms)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ms.handleWS)
	mux.HandleFunc("/info", ms.handleInfo)
	mux.HandleFunc("/auth/login", ms.handleLogin)
	mux.HandleFunc("/auth/tokens", ms.handleTokens)
	mux.HandleFunc("/auth/tokens/", ms.handleTokenDelete)
	mux.HandleFunc("/auth/me", ms.handleMe)

	ms.Server = httptest.NewServer(mux)
	ms.URL = ms.Server.URL
	ms.WSURL = "ws" + strings.TrimPrefix(ms.Server.URL, "http") + "/ws"
	return ms
}

// Close shuts the server down and drops all connections.
func (ms *MockServer) Close() {
	ms.CloseConnections()
	ms.Server.Close()
	ms.bus.Shutdown()
}

// Handle registers the handler for a command. Commands without a handler
// succeed with a null result.
func (ms *MockServer) Handle(command string, handler CommandHandler) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[command] = handler
}

// PushEvent broadcasts an event to every connected client.
func (ms *MockServer) PushEvent(ev api.EventMessage) {
	ms.bus.Pub(ev, eventsTopic)
}

// PushRaw broadcasts a raw text frame to every connected client, e.g.
// deliberately malformed JSON.
func (ms *MockServer) PushRaw(data []byte) {
	ms.bus.Pub(data, eventsTopic)
}

// IssueToken mints a valid long-lived token directly, bypassing the
// login flow.
func (ms *MockServer) IssueToken(name string) string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.mintToken(name, true)
}

// CloseConnections force-closes all active WebSocket connections.
func (ms *MockServer) CloseConnections() {
	ms.mu.Lock()
	conns := ms.conns
	ms.conns = nil
	ms.mu.Unlock()
	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server closing")
	}
}

// LoginCalls returns how many login requests were received.
func (ms *MockServer) LoginCalls() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.loginCalls
}

// TokenCreateCalls returns how many token creation requests were received.
func (ms *MockServer) TokenCreateCalls() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.tokenCreates
}

func (ms *MockServer) user() api.User {
	return api.User{UserID: "user-1", Username: ms.Username, IsAdmin: true}
}

func (ms *MockServer) serverInfo() *api.ServerInfoMessage {
	return &api.ServerInfoMessage{
		ServerID:                  ms.ServerID,
		ServerVersion:             ms.ServerVersion,
		SchemaVersion:             ms.SchemaVersion,
		MinSupportedSchemaVersion: ms.MinSchemaVersion,
		BaseURL:                   ms.URL,
	}
}

// mintToken creates a token record; callers hold ms.mu.
func (ms *MockServer) mintToken(name string, longLived bool) string {
	secret := uuid.NewString()
	ms.tokens[secret] = &tokenRecord{
		record: api.AuthToken{
			TokenID:     uuid.NewString(),
			Name:        name,
			IsLongLived: longLived,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		secret: secret,
		user:   ms.user(),
	}
	return secret
}

func (ms *MockServer) lookupToken(secret string) (*tokenRecord, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	rec, ok := ms.tokens[secret]
	return rec, ok
}

func (ms *MockServer) handler(command string) CommandHandler {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.handlers[command]
}

func (ms *MockServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx := r.Context()
	defer conn.Close(websocket.StatusNormalClosure, "handler finished")

	var writeMu sync.Mutex
	write := func(msg any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = wsjson.Write(wctx, conn, msg)
	}

	// Server info is always the first frame on the wire.
	write(ms.serverInfo())

	ms.mu.Lock()
	ms.conns = append(ms.conns, conn)
	ms.mu.Unlock()
	defer func() {
		ms.mu.Lock()
		for i, c := range ms.conns {
			if c == conn {
				ms.conns = append(ms.conns[:i], ms.conns[i+1:]...)
				break
			}
		}
		ms.mu.Unlock()
	}()

	// Fan pushed events out to this connection.
	evCh := ms.bus.Sub(eventsTopic)
	defer ms.bus.Unsub(evCh, eventsTopic)
	go func() {
		for msg := range evCh {
			if raw, ok := msg.([]byte); ok {
				writeMu.Lock()
				wctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = conn.Write(wctx, websocket.MessageText, raw)
				cancel()
				writeMu.Unlock()
				continue
			}
			write(msg)
		}
	}()

	authed := ms.SchemaVersion < api.AuthRequiredSchemaVersion
	for {
		var cmd api.CommandMessage
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return
		}

		if cmd.Command == "auth" {
			secret, _ := cmd.Args["token"].(string)
			if rec, ok := ms.lookupToken(secret); ok {
				authed = true
				result, _ := json.Marshal(rec.user)
				write(&api.SuccessResultMessage{MessageID: cmd.MessageID, Result: result})
			} else {
				write(&api.ErrorResultMessage{
					MessageID: cmd.MessageID,
					ErrorCode: "auth_failed",
					Details:   "invalid token",
				})
			}
			continue
		}
		if !authed {
			write(&api.ErrorResultMessage{
				MessageID: cmd.MessageID,
				ErrorCode: "auth_required",
				Details:   "authenticate first",
			})
			continue
		}

		handler := ms.handler(cmd.Command)
		go func(cmd api.CommandMessage) {
			if handler == nil {
				write(&api.SuccessResultMessage{MessageID: cmd.MessageID})
				return
			}
			res, err := handler(cmd.Args)
			if err != nil {
				write(&api.ErrorResultMessage{
					MessageID: cmd.MessageID,
					ErrorCode: "command_error",
					Details:   err.Error(),
				})
				return
			}
			result, _ := json.Marshal(res)
			write(&api.SuccessResultMessage{MessageID: cmd.MessageID, Result: result})
		}(cmd)
	}
}

func (ms *MockServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ms.serverInfo())
}

func (ms *MockServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ms.mu.Lock()
	ms.loginCalls++
	ok := body.Username == ms.Username && body.Password == ms.Password
	var secret string
	if ok {
		secret = ms.mintToken("session", false)
	}
	ms.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"user":         ms.user(),
		"access_token": secret,
	})
}

func (ms *MockServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	if _, ok := ms.bearerToken(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Name        string `json:"name"`
			IsLongLived bool   `json:"is_long_lived"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ms.mu.Lock()
		ms.tokenCreates++
		secret := ms.mintToken(body.Name, body.IsLongLived)
		ms.mu.Unlock()
		writeJSON(w, map[string]string{"token": secret})
	case http.MethodGet:
		ms.mu.Lock()
		records := make([]api.AuthToken, 0, len(ms.tokens))
		for _, t := range ms.tokens {
			records = append(records, t.record)
		}
		ms.mu.Unlock()
		writeJSON(w, records)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ms *MockServer) handleTokenDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := ms.bearerToken(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tokenID := strings.TrimPrefix(r.URL.Path, "/auth/tokens/")
	ms.mu.Lock()
	for secret, t := range ms.tokens {
		if t.record.TokenID == tokenID {
			delete(ms.tokens, secret)
			break
		}
	}
	ms.mu.Unlock()
	writeJSON(w, map[string]bool{"revoked": true})
}

func (ms *MockServer) handleMe(w http.ResponseWriter, r *http.Request) {
	rec, ok := ms.bearerToken(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, rec.user)
}

func (ms *MockServer) bearerToken(r *http.Request) (*tokenRecord, bool) {
	secret, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return nil, false
	}
	return ms.lookupToken(secret)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
