package models

import "time"

// ChatMessage is the payload written to the outbound messages topic.
// The chat relay posts Text to Destination.
type ChatMessage struct {
	RequestID   string    `json:"request_id,omitempty"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`
}
