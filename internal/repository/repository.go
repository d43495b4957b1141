package repository

import (
	"context"

	"github.com/splax/skillsync/internal/domain"
)

// TeamRepository persists team aggregates.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeam(ctx context.Context, teamID string) (*domain.Team, error)
	// SaveTeam writes the aggregate when team.Version matches the stored
	// version and bumps it, otherwise it returns ErrConflict.
	SaveTeam(ctx context.Context, team *domain.Team) error
	ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error)
	ListTeamsByMentor(ctx context.Context, mentorID string) ([]domain.Team, error)
	ListTeamsWithoutMember(ctx context.Context, userID string) ([]domain.Team, error)
}

// FileRepository persists file custody records.
type FileRepository interface {
	InsertFile(ctx context.Context, file *domain.FileRecord) error
	// GetFile returns the record even when tombstoned.
	GetFile(ctx context.Context, teamID, fileID string) (*domain.FileRecord, error)
	ListFiles(ctx context.Context, teamID string) ([]domain.FileRecord, error)
	// MarkFileDeleted tombstones the record and reports whether this call did it.
	MarkFileDeleted(ctx context.Context, teamID, fileID string) (bool, error)
}

// ChatRepository persists per-team chat logs.
type ChatRepository interface {
	// AppendMessage assigns msg.Seq as the next per-team sequence.
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
	ListMessages(ctx context.Context, teamID string, afterSeq int64, limit int) ([]domain.ChatMessage, error)
}

// SubmissionRepository persists review attempts.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, sub *domain.Submission) error
	UpdateSubmission(ctx context.Context, sub *domain.Submission) error
	LatestSubmission(ctx context.Context, teamID string) (*domain.Submission, error)
	ListSubmissions(ctx context.Context, teamID string) ([]domain.Submission, error)
	// RecordSubmission inserts sub and saves team, version-guarded like
	// SaveTeam, in one transaction. Neither write survives a failure.
	RecordSubmission(ctx context.Context, team *domain.Team, sub *domain.Submission) error
	// RecordDecision updates sub and saves team in one transaction.
	RecordDecision(ctx context.Context, team *domain.Team, sub *domain.Submission) error
}

// AppreciationRepository persists peer appreciation notes.
type AppreciationRepository interface {
	CreateAppreciation(ctx context.Context, a *domain.Appreciation) error
	ListAppreciationsTo(ctx context.Context, teamID, toUser string) ([]domain.Appreciation, error)
	// ListAppreciationsReceived returns toUser's notes from every team,
	// newest first.
	ListAppreciationsReceived(ctx context.Context, toUser string) ([]domain.Appreciation, error)
}

// SessionRepository persists mentor sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionLink(ctx context.Context, sessionID, link string) error
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessionsByTeam(ctx context.Context, teamID string) ([]domain.Session, error)
	ListSessionsByMentor(ctx context.Context, mentorID string) ([]domain.Session, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	TeamRepository
	FileRepository
	ChatRepository
	SubmissionRepository
	AppreciationRepository
	SessionRepository
	Ping(ctx context.Context) error
	Close() error
}
