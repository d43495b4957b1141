package domain

import "time"

// Appreciation is a private note from one teammate to another.
type Appreciation struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	FromUser  string    `json:"from_user"`
	ToUser    string    `json:"to_user"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
