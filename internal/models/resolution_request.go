package models

import "time"

// ResolutionRequest asks for Target to be resolved and summarized to Destination.
type ResolutionRequest struct {
	RequestID   string    `json:"request_id"`
	Target      string    `json:"target"`
	Destination string    `json:"destination"`
	CreatedAt   time.Time `json:"created_at"`
}
