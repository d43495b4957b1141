package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const sessionColumns = `id, team_id, mentor_id, scheduled_at, meeting_link, created_at`

// CreateSession stores a scheduled mentor session.
func (r *Repository) CreateSession(ctx context.Context, s *domain.Session) error {
	const query = `INSERT INTO mentor_sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, s.ID, s.TeamID, s.MentorID, s.ScheduledAt, nilIfEmpty(s.MeetingLink), s.CreatedAt)
	return translate(err)
}

// GetSession fetches a session by id.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM mentor_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// UpdateSessionLink replaces the meeting link.
func (r *Repository) UpdateSessionLink(ctx context.Context, sessionID, link string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE mentor_sessions SET meeting_link = $2 WHERE id = $1`, sessionID, nilIfEmpty(link))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteSession removes a session.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mentor_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListSessionsByTeam returns a team's sessions ordered by start time.
func (r *Repository) ListSessionsByTeam(ctx context.Context, teamID string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM mentor_sessions WHERE team_id = $1 ORDER BY scheduled_at`
	return r.listSessions(ctx, query, teamID)
}

// ListSessionsByMentor returns a mentor's sessions ordered by start time.
func (r *Repository) ListSessionsByMentor(ctx context.Context, mentorID string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM mentor_sessions WHERE mentor_id = $1 ORDER BY scheduled_at`
	return r.listSessions(ctx, query, mentorID)
}

func (r *Repository) listSessions(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s    domain.Session
		link *string
	)
	if err := row.Scan(&s.ID, &s.TeamID, &s.MentorID, &s.ScheduledAt, &link, &s.CreatedAt); err != nil {
		return nil, err
	}
	if link != nil {
		s.MeetingLink = *link
	}
	return &s, nil
}
