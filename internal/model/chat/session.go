package chat

import "time"

// SessionSummary exposes the metadata of a session without its content.
// Sender is always masked.
type SessionSummary struct {
	Sender       string    `json:"phone"`
	LastActive   time.Time `json:"last_message_time"`
	MessageCount int       `json:"message_count"`
}

// Stats aggregates store-wide counters.
type Stats struct {
	Sessions int `json:"total_conversations"`
	Turns    int `json:"total_messages"`
}

// SweepReport describes the outcome of a maintenance pass.
type SweepReport struct {
	Expired   int `json:"expired"`
	Evicted   int `json:"evicted"`
	Remaining int `json:"remaining"`
}
