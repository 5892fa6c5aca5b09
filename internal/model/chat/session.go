package chat

import "time"

// Session is a logical conversation thread under which messages accumulate.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
