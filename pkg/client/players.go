package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
)

// Players is the player command surface plus a cache of player state
// maintained from server events.
type Players struct {
	client *Client

	mu      sync.RWMutex
	players map[string]*api.Player
}

func newPlayers(c *Client) *Players {
	p := &Players{
		client:  c,
		players: make(map[string]*api.Player),
	}
	c.dispatcher.subscribe(p.handleEvent, FilterEvents(
		api.EventPlayerAdded,
		api.EventPlayerUpdated,
		api.EventPlayerRemoved,
	))
	return p
}

// FetchState retrieves all players from the server and primes the cache.
// Call once the listen loop is running.
func (p *Players) FetchState(ctx context.Context) error {
	players, err := GenericCommand[[]*api.Player](p.client, ctx, "players/all", nil)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, player := range *players {
		p.players[player.PlayerID] = player
	}
	return nil
}

// Get returns the cached player with the given id.
func (p *Players) Get(playerID string) (*api.Player, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	player, ok := p.players[playerID]
	return player, ok
}

// All returns all cached players.
func (p *Players) All() []*api.Player {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*api.Player, 0, len(p.players))
	for _, player := range p.players {
		out = append(out, player)
	}
	return out
}

func (p *Players) handleEvent(ev *api.EventMessage) {
	if ev.ObjectID == "" {
		return
	}
	switch ev.Event {
	case api.EventPlayerAdded, api.EventPlayerUpdated:
		var player api.Player
		if err := json.Unmarshal(ev.Data, &player); err != nil {
			p.client.config.logger.Warn("undecodable player event",
				"event", ev.Event, "object_id", ev.ObjectID, "error", err)
			return
		}
		p.mu.Lock()
		p.players[ev.ObjectID] = &player
		p.mu.Unlock()
	case api.EventPlayerRemoved:
		p.mu.Lock()
		delete(p.players, ev.ObjectID)
		p.mu.Unlock()
	}
}

// Player commands. Each is a thin pass-through to the server's command
// surface.

// Play sends a PLAY command to the given player.
func (p *Players) Play(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/play", map[string]any{"player_id": playerID})
	return err
}

// Pause sends a PAUSE command to the given player.
func (p *Players) Pause(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/pause", map[string]any{"player_id": playerID})
	return err
}

// PlayPause toggles playback on the given player.
func (p *Players) PlayPause(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/play_pause", map[string]any{"player_id": playerID})
	return err
}

// Stop sends a STOP command to the given player.
func (p *Players) Stop(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/stop", map[string]any{"player_id": playerID})
	return err
}

// Power powers the given player on or off.
func (p *Players) Power(ctx context.Context, playerID string, powered bool) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/power", map[string]any{
		"player_id": playerID, "powered": powered,
	})
	return err
}

// VolumeSet sets the volume level (0..100) on the given player.
func (p *Players) VolumeSet(ctx context.Context, playerID string, volumeLevel int) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/volume_set", map[string]any{
		"player_id": playerID, "volume_level": volumeLevel,
	})
	return err
}

// VolumeUp raises the volume one step on the given player.
func (p *Players) VolumeUp(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/volume_up", map[string]any{"player_id": playerID})
	return err
}

// VolumeDown lowers the volume one step on the given player.
func (p *Players) VolumeDown(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/volume_down", map[string]any{"player_id": playerID})
	return err
}

// VolumeMute mutes or unmutes the given player.
func (p *Players) VolumeMute(ctx context.Context, playerID string, muted bool) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/volume_mute", map[string]any{
		"player_id": playerID, "muted": muted,
	})
	return err
}

// Seek seeks to the given position (seconds) in the current item.
func (p *Players) Seek(ctx context.Context, playerID string, position int) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/seek", map[string]any{
		"player_id": playerID, "position": position,
	})
	return err
}

// Next skips to the next track on the given player.
func (p *Players) Next(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/next", map[string]any{"player_id": playerID})
	return err
}

// Previous skips to the previous track on the given player.
func (p *Players) Previous(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/previous", map[string]any{"player_id": playerID})
	return err
}

// SelectSource activates the given source on the player.
func (p *Players) SelectSource(ctx context.Context, playerID, source string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/select_source", map[string]any{
		"player_id": playerID, "source": source,
	})
	return err
}

// Group joins the given player to the given group leader. May fail
// server-side when the players cannot be synced.
func (p *Players) Group(ctx context.Context, playerID, targetPlayer string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/group", map[string]any{
		"player_id": playerID, "target_player": targetPlayer,
	})
	return err
}

// Ungroup removes the given player from any group it is synced to.
func (p *Players) Ungroup(ctx context.Context, playerID string) error {
	_, err := p.client.SendCommand(ctx, "players/cmd/ungroup", map[string]any{"player_id": playerID})
	return err
}

// PlayAnnouncement plays an announcement url on the given player,
// optionally at a forced volume level (nil keeps the player's volume).
func (p *Players) PlayAnnouncement(ctx context.Context, playerID, url string, volumeLevel *int) error {
	args := map[string]any{"player_id": playerID, "url": url}
	if volumeLevel != nil {
		args["volume_level"] = *volumeLevel
	}
	_, err := p.client.SendCommand(ctx, "players/cmd/play_announcement", args)
	return err
}
