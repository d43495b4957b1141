package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const teamColumns = `t.id, t.name, t.creator_id, t.capacity, t.required_skills, t.mentor_id, t.review_status,
	t.project_meta, t.mentor_notes, t.resubmissions, t.version, t.created_at, t.updated_at`

// CreateTeam inserts the team and its roster.
func (s *Store) CreateTeam(ctx context.Context, team *domain.Team) error {
	skills, err := encodeJSON(nonNil(team.RequiredSkills))
	if err != nil {
		return err
	}
	meta, err := encodeJSON(team.ProjectMeta)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO teams (id, name, creator_id, capacity, required_skills, mentor_id, review_status,
			project_meta, mentor_notes, resubmissions, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		team.ID, team.Name, team.CreatorID, team.Capacity, skills, team.MentorID, string(team.ReviewStatus),
		meta, team.MentorNotes, team.Resubmissions, toMillis(team.CreatedAt), toMillis(team.CreatedAt),
	)
	if err != nil {
		return translate(err)
	}
	if err := insertMembers(ctx, tx, team.ID, team.Members); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	team.Version = 1
	team.UpdatedAt = team.CreatedAt
	return nil
}

// GetTeam loads a team with its roster.
func (s *Store) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.id = ?`, teamID)
	team, err := scanTeam(row)
	if err != nil {
		return nil, translate(err)
	}
	teams := []domain.Team{*team}
	if err := s.attachMembers(ctx, teams); err != nil {
		return nil, err
	}
	return &teams[0], nil
}

// SaveTeam writes the aggregate when the stored version matches.
func (s *Store) SaveTeam(ctx context.Context, team *domain.Team) error {
	return s.inTeamTx(ctx, team, nil)
}

// inTeamTx saves team and runs extra in the same transaction. The in-memory
// version only moves once the transaction commits.
func (s *Store) inTeamTx(ctx context.Context, team *domain.Team, extra func(*sql.Tx) error) error {
	skills, err := encodeJSON(nonNil(team.RequiredSkills))
	if err != nil {
		return err
	}
	meta, err := encodeJSON(team.ProjectMeta)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE teams SET name = ?, capacity = ?, required_skills = ?, mentor_id = ?, review_status = ?,
			project_meta = ?, mentor_notes = ?, resubmissions = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		team.Name, team.Capacity, skills, team.MentorID, string(team.ReviewStatus),
		meta, team.MentorNotes, team.Resubmissions, toMillis(now),
		team.ID, team.Version,
	)
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id = ?`, team.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}
		return repository.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = ?`, team.ID); err != nil {
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
	if err := tx.Commit(); err != nil {
		return err
	}
	team.Version++
	team.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

// ListTeamsByMember returns teams the user belongs to, newest first.
func (s *Store) ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	return s.listTeams(ctx, `SELECT `+teamColumns+`
		FROM teams t INNER JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.user_id = ?
		ORDER BY t.created_at DESC, t.rowid DESC`, userID)
}

// ListTeamsByMentor returns teams assigned to the mentor, newest first.
func (s *Store) ListTeamsByMentor(ctx context.Context, mentorID string) ([]domain.Team, error) {
	return s.listTeams(ctx, `SELECT `+teamColumns+` FROM teams t
		WHERE t.mentor_id = ?
		ORDER BY t.created_at DESC, t.rowid DESC`, mentorID)
}

// ListTeamsWithoutMember returns teams the user has not joined, newest first.
func (s *Store) ListTeamsWithoutMember(ctx context.Context, userID string) ([]domain.Team, error) {
	return s.listTeams(ctx, `SELECT `+teamColumns+` FROM teams t
		WHERE NOT EXISTS (SELECT 1 FROM team_members tm WHERE tm.team_id = t.id AND tm.user_id = ?)
		ORDER BY t.created_at DESC, t.rowid DESC`, userID)
}

func (s *Store) listTeams(ctx context.Context, query string, args ...any) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	teams := make([]domain.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		teams = append(teams, *team)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.attachMembers(ctx, teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// attachMembers runs after the team cursor is closed since the store holds
// a single connection.
func (s *Store) attachMembers(ctx context.Context, teams []domain.Team) error {
	if len(teams) == 0 {
		return nil
	}
	index := make(map[string]int, len(teams))
	placeholders := make([]string, len(teams))
	args := make([]any, len(teams))
	for i, team := range teams {
		index[team.ID] = i
		placeholders[i] = "?"
		args[i] = team.ID
		teams[i].Members = make([]domain.Member, 0)
	}
	query := fmt.Sprintf(`SELECT team_id, user_id, name, joined_at FROM team_members
		WHERE team_id IN (%s) ORDER BY team_id, position`, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			teamID   string
			m        domain.Member
			joinedAt int64
		)
		if err := rows.Scan(&teamID, &m.UserID, &m.Name, &joinedAt); err != nil {
			return err
		}
		m.JoinedAt = fromMillis(joinedAt)
		i := index[teamID]
		teams[i].Members = append(teams[i].Members, m)
	}
	return rows.Err()
}

func insertMembers(ctx context.Context, tx *sql.Tx, teamID string, members []domain.Member) error {
	for i, m := range members {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO team_members (team_id, user_id, name, position, joined_at) VALUES (?, ?, ?, ?, ?)`,
			teamID, m.UserID, m.Name, i, toMillis(m.JoinedAt),
		)
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTeam(row scanner) (*domain.Team, error) {
	var (
		team                 domain.Team
		skills, status, meta string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&team.ID,
		&team.Name,
		&team.CreatorID,
		&team.Capacity,
		&skills,
		&team.MentorID,
		&status,
		&meta,
		&team.MentorNotes,
		&team.Resubmissions,
		&team.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if team.RequiredSkills, err = decodeStrings(skills); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &team.ProjectMeta); err != nil {
		return nil, fmt.Errorf("decode project meta: %w", err)
	}
	team.ReviewStatus = domain.ReviewStatus(status)
	team.CreatedAt = fromMillis(createdAt)
	team.UpdatedAt = fromMillis(updatedAt)
	return &team, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
