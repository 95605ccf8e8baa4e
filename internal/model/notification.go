package model

import (
	"encoding/json"
	"time"
)

// Notification is a read-model record written by the worker when a domain
// event is consumed.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
