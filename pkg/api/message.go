// Package api defines the wire protocol spoken with a Music Assistant
// style home-media server: outgoing commands, their correlated results,
// unsolicited server events and the one-time handshake message, plus the
// error taxonomy and the data models the command surface decodes into.
package api

import (
	"encoding/json"
	"fmt"
)

// AuthRequiredSchemaVersion is the first schema version at which the
// server mandates authentication before accepting commands.
const AuthRequiredSchemaVersion = 28

// CommandMessage is an outbound command frame. MessageID correlates the
// eventual result; ids are assigned monotonically per connection.
type CommandMessage struct {
	MessageID uint64         `json:"message_id"`
	Command   string         `json:"command"`
	Args      map[string]any `json:"args,omitempty"`
}

// SuccessResultMessage is the server's successful answer to a command.
type SuccessResultMessage struct {
	MessageID uint64          `json:"message_id"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// ErrorResultMessage is the server's error answer to a command.
type ErrorResultMessage struct {
	MessageID uint64 `json:"message_id"`
	ErrorCode string `json:"error_code"`
	Details   string `json:"details,omitempty"`
}

// EventMessage is an unsolicited server-pushed event, not correlated to
// any command.
type EventMessage struct {
	Event    EventType       `json:"event"`
	ObjectID string          `json:"object_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ServerInfoMessage is the one-time handshake frame received immediately
// after connecting. It is immutable for the connection's lifetime and
// gates authentication and schema-dependent command semantics.
type ServerInfoMessage struct {
	ServerID                  string `json:"server_id,omitempty"`
	ServerVersion             string `json:"server_version"`
	SchemaVersion             int    `json:"schema_version"`
	MinSupportedSchemaVersion int    `json:"min_supported_schema_version"`
	BaseURL                   string `json:"base_url,omitempty"`
	HomeassistantAddon        bool   `json:"homeassistant_addon,omitempty"`
}

// rawMessage probes an inbound frame for the fields that discriminate the
// message kinds. Pointers distinguish absent from zero.
type rawMessage struct {
	MessageID     *uint64    `json:"message_id"`
	ErrorCode     *string    `json:"error_code"`
	Event         *EventType `json:"event"`
	SchemaVersion *int       `json:"schema_version"`
}

// ParseMessage classifies one inbound frame and returns one of
// *SuccessResultMessage, *ErrorResultMessage, *EventMessage or
// *ServerInfoMessage. Unparseable JSON or an unrecognized shape yields an
// error wrapping ErrInvalidMessage.
func ParseMessage(data []byte) (any, error) {
	var probe rawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch {
	case probe.MessageID != nil && probe.ErrorCode != nil:
		var msg ErrorResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return &msg, nil
	case probe.MessageID != nil:
		var msg SuccessResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return &msg, nil
	case probe.Event != nil:
		var msg EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return &msg, nil
	case probe.SchemaVersion != nil:
		var msg ServerInfoMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized message shape", ErrInvalidMessage)
	}
}
