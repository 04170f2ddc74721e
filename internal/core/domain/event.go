package domain

import "time"

// Event is a notification emitted to the UI layer.
type Event struct {
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type EventType string

const (
	EventNetworkStatusChanged EventType = "network_status_changed"
	EventRateLimitHit         EventType = "rate_limit_hit"
	EventCacheStats           EventType = "cache_stats"
	EventQueueStatus          EventType = "queue_status"
)

// RateLimitHit is the payload of EventRateLimitHit.
type RateLimitHit struct {
	Key     string    `json:"key"`
	ResetAt time.Time `json:"reset_at"`
}

// QueueStatus is the payload of EventQueueStatus.
type QueueStatus struct {
	Length     int  `json:"length"`
	Processing bool `json:"processing"`
}
