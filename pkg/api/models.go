package api

// User is an account on the server, returned by the auth endpoints.
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// AuthToken is a token record as returned by the token listing endpoint.
// The secret itself is only ever returned at creation time.
type AuthToken struct {
	TokenID     string `json:"token_id"`
	Name        string `json:"name"`
	IsLongLived bool   `json:"is_long_lived"`
	CreatedAt   string `json:"created_at,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// PlaybackState is the playback state of a player.
type PlaybackState string

const (
	PlaybackStateIdle    PlaybackState = "idle"
	PlaybackStatePlaying PlaybackState = "playing"
	PlaybackStatePaused  PlaybackState = "paused"
)

// Player is the server's representation of a playback device. Only the
// commonly used fields are modelled; the raw event payload carries the
// full record.
type Player struct {
	PlayerID     string        `json:"player_id"`
	Provider     string        `json:"provider,omitempty"`
	Name         string        `json:"name"`
	Available    bool          `json:"available"`
	Powered      bool          `json:"powered"`
	State        PlaybackState `json:"state,omitempty"`
	VolumeLevel  int           `json:"volume_level,omitempty"`
	VolumeMuted  bool          `json:"volume_muted,omitempty"`
	GroupChilds  []string      `json:"group_childs,omitempty"`
	ActiveSource string        `json:"active_source,omitempty"`
	Elapsed      float64       `json:"elapsed_time,omitempty"`
}

// PlayerQueue is the play queue belonging to a player.
type PlayerQueue struct {
	QueueID     string        `json:"queue_id"`
	Active      bool          `json:"active"`
	DisplayName string        `json:"display_name,omitempty"`
	Items       int           `json:"items"`
	CurrentIdx  int           `json:"current_index,omitempty"`
	State       PlaybackState `json:"state,omitempty"`
	Shuffle     bool          `json:"shuffle_enabled,omitempty"`
	RepeatMode  string        `json:"repeat_mode,omitempty"`
}
