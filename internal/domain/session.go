package domain

import "time"

// SessionStatus is derived from the scheduled time when read.
type SessionStatus string

const (
	SessionUpcoming  SessionStatus = "upcoming"
	SessionCompleted SessionStatus = "completed"
)

// Session is a mentor meeting scheduled for a team.
type Session struct {
	ID          string        `json:"id"`
	TeamID      string        `json:"team_id"`
	MentorID    string        `json:"mentor_id"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	MeetingLink string        `json:"meeting_link,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// WithStatus fills Status relative to now.
func (s Session) WithStatus(now time.Time) Session {
	if s.ScheduledAt.After(now) {
		s.Status = SessionUpcoming
	} else {
		s.Status = SessionCompleted
	}
	return s
}
