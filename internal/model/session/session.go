package session

import "time"

// Session captures one assistant screen hosted by the backend.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
