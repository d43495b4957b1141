package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const submissionColumns = `id, team_id, attempt, status, file_ids, rubric, final_score, mentor_feedback,
	submitted_at, graded_at, decided_at`

// execer is satisfied by the pool and by a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateSubmission stores a new review attempt.
func (r *Repository) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	return insertSubmission(ctx, r.pool, sub)
}

// UpdateSubmission persists grading and decision fields.
func (r *Repository) UpdateSubmission(ctx context.Context, sub *domain.Submission) error {
	return updateSubmission(ctx, r.pool, sub)
}

// RecordSubmission inserts the attempt and saves the team atomically.
func (r *Repository) RecordSubmission(ctx context.Context, team *domain.Team, sub *domain.Submission) error {
	return r.inTeamTx(ctx, team, func(tx pgx.Tx) error { return insertSubmission(ctx, tx, sub) })
}

// RecordDecision updates the attempt and saves the team atomically.
func (r *Repository) RecordDecision(ctx context.Context, team *domain.Team, sub *domain.Submission) error {
	return r.inTeamTx(ctx, team, func(tx pgx.Tx) error { return updateSubmission(ctx, tx, sub) })
}

func insertSubmission(ctx context.Context, db execer, sub *domain.Submission) error {
	rubric, err := encodeRubric(sub.Rubric)
	if err != nil {
		return err
	}
	const query = `INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = db.Exec(ctx, query,
		sub.ID,
		sub.TeamID,
		sub.Attempt,
		string(sub.Status),
		sub.FileIDs,
		rubric,
		sub.FinalScore,
		sub.MentorFeedback,
		sub.SubmittedAt,
		sub.GradedAt,
		sub.DecidedAt,
	)
	return translate(err)
}

func updateSubmission(ctx context.Context, db execer, sub *domain.Submission) error {
	rubric, err := encodeRubric(sub.Rubric)
	if err != nil {
		return err
	}
	const query = `UPDATE submissions SET
			status = $2,
			rubric = $3,
			final_score = $4,
			mentor_feedback = $5,
			graded_at = $6,
			decided_at = $7
		WHERE id = $1`
	tag, err := db.Exec(ctx, query,
		sub.ID,
		string(sub.Status),
		rubric,
		sub.FinalScore,
		sub.MentorFeedback,
		sub.GradedAt,
		sub.DecidedAt,
	)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LatestSubmission returns the highest attempt for a team.
func (r *Repository) LatestSubmission(ctx context.Context, teamID string) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE team_id = $1 ORDER BY attempt DESC LIMIT 1`
	sub, err := scanSubmission(r.pool.QueryRow(ctx, query, teamID))
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

// ListSubmissions returns every attempt, newest first.
func (r *Repository) ListSubmissions(ctx context.Context, teamID string) ([]domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE team_id = $1 ORDER BY attempt DESC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func encodeRubric(rubric *domain.Rubric) (any, error) {
	if rubric == nil {
		return nil, nil
	}
	raw, err := json.Marshal(rubric)
	if err != nil {
		return nil, fmt.Errorf("encode rubric: %w", err)
	}
	return string(raw), nil
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		sub    domain.Submission
		status string
		rubric []byte
	)
	if err := row.Scan(
		&sub.ID,
		&sub.TeamID,
		&sub.Attempt,
		&status,
		&sub.FileIDs,
		&rubric,
		&sub.FinalScore,
		&sub.MentorFeedback,
		&sub.SubmittedAt,
		&sub.GradedAt,
		&sub.DecidedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = domain.ReviewStatus(status)
	if len(rubric) > 0 {
		sub.Rubric = &domain.Rubric{}
		if err := json.Unmarshal(rubric, sub.Rubric); err != nil {
			return nil, fmt.Errorf("decode rubric: %w", err)
		}
	}
	if sub.FileIDs == nil {
		sub.FileIDs = []string{}
	}
	return &sub, nil
}
