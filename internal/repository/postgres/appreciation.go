package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/skillsync/internal/domain"
)

// CreateAppreciation stores a peer appreciation note.
func (r *Repository) CreateAppreciation(ctx context.Context, a *domain.Appreciation) error {
	const query = `INSERT INTO appreciations (id, team_id, from_user, to_user, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.TeamID, a.FromUser, a.ToUser, a.Message, a.CreatedAt)
	return translate(err)
}

// ListAppreciationsTo returns notes addressed to a member, newest first.
func (r *Repository) ListAppreciationsTo(ctx context.Context, teamID, toUser string) ([]domain.Appreciation, error) {
	const query = `SELECT id, team_id, from_user, to_user, message, created_at
		FROM appreciations
		WHERE team_id = $1 AND to_user = $2
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, teamID, toUser)
	if err != nil {
		return nil, err
	}
	return collectAppreciations(rows)
}

// ListAppreciationsReceived returns a member's notes across teams, newest first.
func (r *Repository) ListAppreciationsReceived(ctx context.Context, toUser string) ([]domain.Appreciation, error) {
	const query = `SELECT id, team_id, from_user, to_user, message, created_at
		FROM appreciations
		WHERE to_user = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, toUser)
	if err != nil {
		return nil, err
	}
	return collectAppreciations(rows)
}

func collectAppreciations(rows pgx.Rows) ([]domain.Appreciation, error) {
	defer rows.Close()
	out := make([]domain.Appreciation, 0)
	for rows.Next() {
		var a domain.Appreciation
		if err := rows.Scan(&a.ID, &a.TeamID, &a.FromUser, &a.ToUser, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
