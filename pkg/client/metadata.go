package client

import (
	"context"
	"encoding/json"
)

// Metadata is the metadata command surface.
type Metadata struct {
	client *Client
}

// SetDefaultPreferredLanguage sets the server's default preferred
// language. The server only accepts this once.
func (m *Metadata) SetDefaultPreferredLanguage(ctx context.Context, lang string) error {
	_, err := m.client.SendCommand(ctx, "metadata/set_default_preferred_language", map[string]any{
		"lang": lang,
	})
	return err
}

// UpdateMetadata asks the server to refresh extra metadata for the given
// item uri and returns the updated raw item.
func (m *Metadata) UpdateMetadata(ctx context.Context, item string, forceRefresh bool) (json.RawMessage, error) {
	args := map[string]any{"item": item}
	if forceRefresh {
		args["force_refresh"] = true
	}
	return m.client.SendCommand(ctx, "metadata/update_metadata", args)
}
