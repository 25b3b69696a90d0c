package client

import (
	"context"
	"encoding/json"
)

// Music is the music-library command surface. Only a representative
// subset of the server's catalog is wrapped; anything else goes through
// Client.SendCommand directly.
type Music struct {
	client *Client
}

// StartSync triggers a library sync for all or the given providers.
func (m *Music) StartSync(ctx context.Context, providers ...string) error {
	args := map[string]any{}
	if len(providers) > 0 {
		args["providers"] = providers
	}
	_, err := m.client.SendCommand(ctx, "music/sync", args)
	return err
}

// Search performs a library search and returns the raw result payload.
func (m *Music) Search(ctx context.Context, query string, mediaTypes ...string) (json.RawMessage, error) {
	args := map[string]any{"search_query": query}
	if len(mediaTypes) > 0 {
		args["media_types"] = mediaTypes
	}
	return m.client.SendCommand(ctx, "music/search", args)
}

// AddItemToFavorites marks the item with the given uri as favorite.
func (m *Music) AddItemToFavorites(ctx context.Context, uri string) error {
	_, err := m.client.SendCommand(ctx, "music/favorites/add_item", map[string]any{"item": uri})
	return err
}

// RemoveItemFromFavorites removes the favorite mark from the given item.
func (m *Music) RemoveItemFromFavorites(ctx context.Context, mediaType, libraryItemID string) error {
	_, err := m.client.SendCommand(ctx, "music/favorites/remove_item", map[string]any{
		"media_type": mediaType, "library_item_id": libraryItemID,
	})
	return err
}
