package domain

import "time"

// ChatMessage is an immutable entry in a team's chat log.
type ChatMessage struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"team_id"`
	Seq        int64     `json:"seq"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
