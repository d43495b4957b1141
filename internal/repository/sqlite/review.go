package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

const submissionColumns = `id, team_id, attempt, status, file_ids, rubric, final_score, mentor_feedback,
	submitted_at, graded_at, decided_at`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateSubmission stores a new attempt.
func (s *Store) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	return insertSubmission(ctx, s.db, sub)
}

// UpdateSubmission persists grading and decision fields.
func (s *Store) UpdateSubmission(ctx context.Context, sub *domain.Submission) error {
	return updateSubmission(ctx, s.db, sub)
}

// RecordSubmission inserts the attempt and saves the team atomically.
func (s *Store) RecordSubmission(ctx context.Context, team *domain.Team, sub *domain.Submission) error {
	return s.inTeamTx(ctx, team, func(tx *sql.Tx) error { return insertSubmission(ctx, tx, sub) })
}

// RecordDecision updates the attempt and saves the team atomically.
func (s *Store) RecordDecision(ctx context.Context, team *domain.Team, sub *domain.Submission) error {
	return s.inTeamTx(ctx, team, func(tx *sql.Tx) error { return updateSubmission(ctx, tx, sub) })
}

func insertSubmission(ctx context.Context, db execer, sub *domain.Submission) error {
	fileIDs, err := encodeJSON(nonNil(sub.FileIDs))
	if err != nil {
		return err
	}
	rubric, err := encodeRubric(sub.Rubric)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.TeamID, sub.Attempt, string(sub.Status), fileIDs, rubric, nullInt(sub.FinalScore),
		sub.MentorFeedback, toMillis(sub.SubmittedAt), nullMillis(sub.GradedAt), nullMillis(sub.DecidedAt),
	)
	return translate(err)
}

func updateSubmission(ctx context.Context, db execer, sub *domain.Submission) error {
	rubric, err := encodeRubric(sub.Rubric)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, rubric = ?, final_score = ?, mentor_feedback = ?, graded_at = ?, decided_at = ?
		 WHERE id = ?`,
		string(sub.Status), rubric, nullInt(sub.FinalScore), sub.MentorFeedback,
		nullMillis(sub.GradedAt), nullMillis(sub.DecidedAt), sub.ID,
	)
	if err != nil {
		return translate(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LatestSubmission returns the highest attempt.
func (s *Store) LatestSubmission(ctx context.Context, teamID string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE team_id = ? ORDER BY attempt DESC LIMIT 1`, teamID)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

// ListSubmissions returns attempts newest first.
func (s *Store) ListSubmissions(ctx context.Context, teamID string) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE team_id = ? ORDER BY attempt DESC`, teamID)
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

func encodeRubric(rubric *domain.Rubric) (sql.NullString, error) {
	if rubric == nil {
		return sql.NullString{}, nil
	}
	raw, err := encodeJSON(rubric)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: raw, Valid: true}, nil
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func scanSubmission(row scanner) (*domain.Submission, error) {
	var (
		sub                 domain.Submission
		status, fileIDs     string
		rubric              sql.NullString
		finalScore          sql.NullInt64
		submittedAt         int64
		gradedAt, decidedAt sql.NullInt64
	)
	if err := row.Scan(
		&sub.ID,
		&sub.TeamID,
		&sub.Attempt,
		&status,
		&fileIDs,
		&rubric,
		&finalScore,
		&sub.MentorFeedback,
		&submittedAt,
		&gradedAt,
		&decidedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if sub.FileIDs, err = decodeStrings(fileIDs); err != nil {
		return nil, err
	}
	if rubric.Valid {
		sub.Rubric = &domain.Rubric{}
		if err := json.Unmarshal([]byte(rubric.String), sub.Rubric); err != nil {
			return nil, fmt.Errorf("decode rubric: %w", err)
		}
	}
	if finalScore.Valid {
		score := int(finalScore.Int64)
		sub.FinalScore = &score
	}
	sub.Status = domain.ReviewStatus(status)
	sub.SubmittedAt = fromMillis(submittedAt)
	sub.GradedAt = fromNullMillis(gradedAt)
	sub.DecidedAt = fromNullMillis(decidedAt)
	return &sub, nil
}

// CreateAppreciation stores a peer appreciation note.
func (s *Store) CreateAppreciation(ctx context.Context, a *domain.Appreciation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appreciations (id, team_id, from_user, to_user, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.TeamID, a.FromUser, a.ToUser, a.Message, toMillis(a.CreatedAt))
	return translate(err)
}

// ListAppreciationsTo returns notes addressed to a member, newest first.
func (s *Store) ListAppreciationsTo(ctx context.Context, teamID, toUser string) ([]domain.Appreciation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, team_id, from_user, to_user, message, created_at FROM appreciations
		 WHERE team_id = ? AND to_user = ? ORDER BY created_at DESC, rowid DESC`, teamID, toUser)
	if err != nil {
		return nil, err
	}
	return scanAppreciations(rows)
}

// ListAppreciationsReceived returns a member's notes across teams, newest first.
func (s *Store) ListAppreciationsReceived(ctx context.Context, toUser string) ([]domain.Appreciation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, team_id, from_user, to_user, message, created_at FROM appreciations
		 WHERE to_user = ? ORDER BY created_at DESC, id DESC`, toUser)
	if err != nil {
		return nil, err
	}
	return scanAppreciations(rows)
}

func scanAppreciations(rows *sql.Rows) ([]domain.Appreciation, error) {
	defer rows.Close()
	out := make([]domain.Appreciation, 0)
	for rows.Next() {
		var (
			a         domain.Appreciation
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.TeamID, &a.FromUser, &a.ToUser, &a.Message, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = fromMillis(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

const sessionColumns = `id, team_id, mentor_id, scheduled_at, meeting_link, created_at`

// CreateSession stores a mentor session.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mentor_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TeamID, sess.MentorID, toMillis(sess.ScheduledAt), nullString(sess.MeetingLink), toMillis(sess.CreatedAt))
	return translate(err)
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM mentor_sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, translate(err)
	}
	return sess, nil
}

// UpdateSessionLink replaces the meeting link.
func (s *Store) UpdateSessionLink(ctx context.Context, sessionID, link string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mentor_sessions SET meeting_link = ? WHERE id = ?`, nullString(link), sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mentor_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListSessionsByTeam returns a team's sessions by start time.
func (s *Store) ListSessionsByTeam(ctx context.Context, teamID string) ([]domain.Session, error) {
	return s.listSessions(ctx, `SELECT `+sessionColumns+` FROM mentor_sessions WHERE team_id = ? ORDER BY scheduled_at`, teamID)
}

// ListSessionsByMentor returns a mentor's sessions by start time.
func (s *Store) ListSessionsByMentor(ctx context.Context, mentorID string) ([]domain.Session, error) {
	return s.listSessions(ctx, `SELECT `+sessionColumns+` FROM mentor_sessions WHERE mentor_id = ? ORDER BY scheduled_at`, mentorID)
}

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		sess                   domain.Session
		scheduledAt, createdAt int64
		link                   sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.TeamID, &sess.MentorID, &scheduledAt, &link, &createdAt); err != nil {
		return nil, err
	}
	sess.ScheduledAt = fromMillis(scheduledAt)
	sess.CreatedAt = fromMillis(createdAt)
	sess.MeetingLink = link.String
	return &sess, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
