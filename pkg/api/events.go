package api

// EventType identifies the kind of a server-pushed event.
type EventType string

const (
	EventPlayerAdded            EventType = "player_added"
	EventPlayerUpdated          EventType = "player_updated"
	EventPlayerRemoved          EventType = "player_removed"
	EventQueueAdded             EventType = "queue_added"
	EventQueueUpdated           EventType = "queue_updated"
	EventQueueItemsUpdated      EventType = "queue_items_updated"
	EventMediaItemAdded         EventType = "media_item_added"
	EventMediaItemUpdated       EventType = "media_item_updated"
	EventMediaItemDeleted       EventType = "media_item_deleted"
	EventProvidersUpdated       EventType = "providers_updated"
	EventConfigUpdated          EventType = "config_updated"
	EventSyncTasksUpdated       EventType = "sync_tasks_updated"
	EventAuthRevoked            EventType = "auth_revoked"
	EventShutdown               EventType = "shutdown"
	EventConnectionStateChanged EventType = "connection_state_changed"
)

// ConnectionState is the payload of a connection_state_changed event,
// synthesized by the client session itself rather than the server.
type ConnectionState string

const (
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
)
