package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const teamColumns = `t.id, t.name, t.creator_id, t.capacity, t.required_skills, t.mentor_id, t.review_status,
	t.project_meta, t.mentor_notes, t.resubmissions, t.version, t.created_at, t.updated_at`

// CreateTeam inserts the team and its initial roster.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	meta, err := json.Marshal(team.ProjectMeta)
	if err != nil {
		return fmt.Errorf("encode project meta: %w", err)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `INSERT INTO teams (id, name, creator_id, capacity, required_skills, mentor_id, review_status,
			project_meta, mentor_notes, resubmissions, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $11)`
	if _, err := tx.Exec(ctx, query,
		team.ID,
		team.Name,
		team.CreatorID,
		team.Capacity,
		team.RequiredSkills,
		team.MentorID,
		string(team.ReviewStatus),
		string(meta),
		team.MentorNotes,
		team.Resubmissions,
		team.CreatedAt,
	); err != nil {
		return translate(err)
	}
	if err := insertMembers(ctx, tx, team.ID, team.Members); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	team.Version = 1
	team.UpdatedAt = team.CreatedAt
	return nil
}

// GetTeam loads a team with its ordered roster.
func (r *Repository) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams t WHERE t.id = $1`
	team, err := scanTeam(r.pool.QueryRow(ctx, query, teamID))
	if err != nil {
		return nil, translate(err)
	}
	teams := []domain.Team{*team}
	if err := r.attachMembers(ctx, teams); err != nil {
		return nil, err
	}
	return &teams[0], nil
}

// SaveTeam writes the aggregate guarded by its version.
func (r *Repository) SaveTeam(ctx context.Context, team *domain.Team) error {
	return r.inTeamTx(ctx, team, nil)
}

// inTeamTx saves team and runs extra in the same transaction. The in-memory
// version only moves once the transaction commits.
func (r *Repository) inTeamTx(ctx context.Context, team *domain.Team, extra func(pgx.Tx) error) error {
	meta, err := json.Marshal(team.ProjectMeta)
	if err != nil {
		return fmt.Errorf("encode project meta: %w", err)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE teams SET
			name = $2,
			capacity = $3,
			required_skills = $4,
			mentor_id = $5,
			review_status = $6,
			project_meta = $7,
			mentor_notes = $8,
			resubmissions = $9,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $10
		RETURNING version, updated_at`
	var (
		version   int64
		updatedAt time.Time
	)
	err = tx.QueryRow(ctx, update,
		team.ID,
		team.Name,
		team.Capacity,
		team.RequiredSkills,
		team.MentorID,
		string(team.ReviewStatus),
		string(meta),
		team.MentorNotes,
		team.Resubmissions,
		team.Version,
	).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, team.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrConflict
		}
		return translate(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, team.ID); err != nil {
		return err
	}
	if err := insertMembers(ctx, tx, team.ID, team.Members); err != nil {
		return err
	}
	if extra != nil {
		if err := extra(tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	team.Version, team.UpdatedAt = version, updatedAt
	return nil
}

// ListTeamsByMember returns teams the user belongs to.
func (r *Repository) ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	query := `SELECT ` + teamColumns + `
		FROM teams t
		INNER JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.user_id = $1
		ORDER BY t.created_at DESC`
	return r.listTeams(ctx, query, userID)
}

// ListTeamsByMentor returns teams assigned to the mentor.
func (r *Repository) ListTeamsByMentor(ctx context.Context, mentorID string) ([]domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams t WHERE t.mentor_id = $1 ORDER BY t.created_at DESC`
	return r.listTeams(ctx, query, mentorID)
}

// ListTeamsWithoutMember returns teams the user has not joined.
func (r *Repository) ListTeamsWithoutMember(ctx context.Context, userID string) ([]domain.Team, error) {
	query := `SELECT ` + teamColumns + `
		FROM teams t
		WHERE NOT EXISTS (SELECT 1 FROM team_members tm WHERE tm.team_id = t.id AND tm.user_id = $1)
		ORDER BY t.created_at DESC`
	return r.listTeams(ctx, query, userID)
}

func (r *Repository) listTeams(ctx context.Context, query string, args ...any) ([]domain.Team, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, *team)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *Repository) attachMembers(ctx context.Context, teams []domain.Team) error {
	if len(teams) == 0 {
		return nil
	}
	ids := make([]string, len(teams))
	index := make(map[string]int, len(teams))
	for i, team := range teams {
		ids[i] = team.ID
		index[team.ID] = i
		teams[i].Members = make([]domain.Member, 0)
	}
	const query = `SELECT team_id, user_id, name, joined_at FROM team_members
		WHERE team_id = ANY($1) ORDER BY team_id, position`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var teamID string
		var m domain.Member
		if err := rows.Scan(&teamID, &m.UserID, &m.Name, &m.JoinedAt); err != nil {
			return err
		}
		i := index[teamID]
		teams[i].Members = append(teams[i].Members, m)
	}
	return rows.Err()
}

func insertMembers(ctx context.Context, tx pgx.Tx, teamID string, members []domain.Member) error {
	if len(members) == 0 {
		return nil
	}
	const insert = `INSERT INTO team_members (team_id, user_id, name, position, joined_at)
		VALUES ($1, $2, $3, $4, $5)`
	batch := &pgx.Batch{}
	for i, m := range members {
		batch.Queue(insert, teamID, m.UserID, m.Name, i, m.JoinedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range members {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return translate(err)
		}
	}
	return br.Close()
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var (
		team   domain.Team
		status string
		meta   []byte
	)
	if err := row.Scan(
		&team.ID,
		&team.Name,
		&team.CreatorID,
		&team.Capacity,
		&team.RequiredSkills,
		&team.MentorID,
		&status,
		&meta,
		&team.MentorNotes,
		&team.Resubmissions,
		&team.Version,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	team.ReviewStatus = domain.ReviewStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &team.ProjectMeta); err != nil {
			return nil, fmt.Errorf("decode project meta: %w", err)
		}
	}
	if team.RequiredSkills == nil {
		team.RequiredSkills = []string{}
	}
	return &team, nil
}
