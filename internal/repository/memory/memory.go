// Package memory keeps every aggregate in process memory. It backs tests and
// single-process development runs; nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

// Store implements repository.Store on maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	teams         map[string]*domain.Team
	teamOrder     []string
	files         map[string][]domain.FileRecord
	fileSeq       int64
	messages      map[string][]domain.ChatMessage
	submissions   map[string][]domain.Submission
	appreciations map[string][]domain.Appreciation
	sessions      map[string]domain.Session
	sessionOrder  []string
}

var _ repository.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		teams:         make(map[string]*domain.Team),
		files:         make(map[string][]domain.FileRecord),
		messages:      make(map[string][]domain.ChatMessage),
		submissions:   make(map[string][]domain.Submission),
		appreciations: make(map[string][]domain.Appreciation),
		sessions:      make(map[string]domain.Session),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// CreateTeam stores a new team.
func (s *Store) CreateTeam(_ context.Context, team *domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[team.ID]; ok {
		return repository.ErrDuplicate
	}
	team.Version = 1
	s.teams[team.ID] = team.Clone()
	s.teamOrder = append(s.teamOrder, team.ID)
	return nil
}

// GetTeam returns a copy of the team.
func (s *Store) GetTeam(_ context.Context, teamID string) (*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return team.Clone(), nil
}

// SaveTeam replaces the stored aggregate when versions match.
func (s *Store) SaveTeam(_ context.Context, team *domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(team); err != nil {
		return err
	}
	s.putTeam(team)
	return nil
}

func (s *Store) checkVersion(team *domain.Team) error {
	current, ok := s.teams[team.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != team.Version {
		return repository.ErrConflict
	}
	return nil
}

func (s *Store) putTeam(team *domain.Team) {
	team.Version++
	team.UpdatedAt = time.Now().UTC()
	s.teams[team.ID] = team.Clone()
}

// ListTeamsByMember returns teams containing userID, newest first.
func (s *Store) ListTeamsByMember(_ context.Context, userID string) ([]domain.Team, error) {
	return s.listTeams(func(t *domain.Team) bool { return t.HasMember(userID) }), nil
}

// ListTeamsByMentor returns teams assigned to mentorID, newest first.
func (s *Store) ListTeamsByMentor(_ context.Context, mentorID string) ([]domain.Team, error) {
	return s.listTeams(func(t *domain.Team) bool { return t.MentorID == mentorID }), nil
}

// ListTeamsWithoutMember returns teams not containing userID, newest first.
func (s *Store) ListTeamsWithoutMember(_ context.Context, userID string) ([]domain.Team, error) {
	return s.listTeams(func(t *domain.Team) bool { return !t.HasMember(userID) }), nil
}

func (s *Store) listTeams(keep func(*domain.Team) bool) []domain.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]domain.Team, 0)
	for i := len(s.teamOrder) - 1; i >= 0; i-- {
		team := s.teams[s.teamOrder[i]]
		if keep(team) {
			teams = append(teams, *team.Clone())
		}
	}
	return teams
}

// InsertFile appends a record and assigns its sequence.
func (s *Store) InsertFile(_ context.Context, file *domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileSeq++
	file.Seq = s.fileSeq
	s.files[file.TeamID] = append(s.files[file.TeamID], *file)
	return nil
}

// GetFile returns a record, tombstoned or not.
func (s *Store) GetFile(_ context.Context, teamID, fileID string) (*domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files[teamID] {
		if f.ID == fileID {
			return &f, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListFiles returns live records ordered by sequence.
func (s *Store) ListFiles(_ context.Context, teamID string) ([]domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]domain.FileRecord, 0, len(s.files[teamID]))
	for _, f := range s.files[teamID] {
		if !f.Deleted() {
			files = append(files, f)
		}
	}
	return files, nil
}

// MarkFileDeleted tombstones the record.
func (s *Store) MarkFileDeleted(_ context.Context, teamID, fileID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.files[teamID]
	for i := range records {
		if records[i].ID != fileID {
			continue
		}
		if records[i].Deleted() {
			return false, nil
		}
		now := time.Now().UTC()
		records[i].DeletedAt = &now
		return true, nil
	}
	return false, repository.ErrNotFound
}

// AppendMessage appends to the team log with the next sequence.
func (s *Store) AppendMessage(_ context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[msg.TeamID]
	msg.Seq = int64(len(log)) + 1
	s.messages[msg.TeamID] = append(log, *msg)
	return nil
}

// ListMessages returns up to limit messages after afterSeq in ascending order.
func (s *Store) ListMessages(_ context.Context, teamID string, afterSeq int64, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[teamID]
	start := int(max(afterSeq, 0))
	if start >= len(log) {
		return []domain.ChatMessage{}, nil
	}
	end := len(log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return slices.Clone(log[start:end]), nil
}

// CreateSubmission stores a new attempt.
func (s *Store) CreateSubmission(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.TeamID] = append(s.submissions[sub.TeamID], cloneSubmission(*sub))
	return nil
}

// UpdateSubmission replaces a stored attempt.
func (s *Store) UpdateSubmission(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.submissions[sub.TeamID]
	for i := range subs {
		if subs[i].ID == sub.ID {
			subs[i] = cloneSubmission(*sub)
			return nil
		}
	}
	return repository.ErrNotFound
}

// RecordSubmission stores a new attempt and the team under one lock.
func (s *Store) RecordSubmission(_ context.Context, team *domain.Team, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(team); err != nil {
		return err
	}
	s.submissions[sub.TeamID] = append(s.submissions[sub.TeamID], cloneSubmission(*sub))
	s.putTeam(team)
	return nil
}

// RecordDecision replaces an attempt and saves the team under one lock.
func (s *Store) RecordDecision(_ context.Context, team *domain.Team, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersion(team); err != nil {
		return err
	}
	subs := s.submissions[sub.TeamID]
	i := slices.IndexFunc(subs, func(stored domain.Submission) bool { return stored.ID == sub.ID })
	if i < 0 {
		return repository.ErrNotFound
	}
	subs[i] = cloneSubmission(*sub)
	s.putTeam(team)
	return nil
}

// LatestSubmission returns the highest attempt.
func (s *Store) LatestSubmission(_ context.Context, teamID string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.submissions[teamID]
	if len(subs) == 0 {
		return nil, repository.ErrNotFound
	}
	latest := cloneSubmission(subs[len(subs)-1])
	return &latest, nil
}

// ListSubmissions returns attempts newest first.
func (s *Store) ListSubmissions(_ context.Context, teamID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.submissions[teamID]
	out := make([]domain.Submission, 0, len(subs))
	for i := len(subs) - 1; i >= 0; i-- {
		out = append(out, cloneSubmission(subs[i]))
	}
	return out, nil
}

// CreateAppreciation stores a note.
func (s *Store) CreateAppreciation(_ context.Context, a *domain.Appreciation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appreciations[a.TeamID] = append(s.appreciations[a.TeamID], *a)
	return nil
}

// ListAppreciationsTo returns notes addressed to toUser, newest first.
func (s *Store) ListAppreciationsTo(_ context.Context, teamID, toUser string) ([]domain.Appreciation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.appreciations[teamID]
	out := make([]domain.Appreciation, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ToUser == toUser {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// ListAppreciationsReceived returns notes addressed to toUser in any team,
// newest first.
func (s *Store) ListAppreciationsReceived(_ context.Context, toUser string) ([]domain.Appreciation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Appreciation, 0)
	for _, notes := range s.appreciations {
		for _, a := range notes {
			if a.ToUser == toUser {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CreateSession stores a session.
func (s *Store) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	s.sessionOrder = append(s.sessionOrder, sess.ID)
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

// UpdateSessionLink replaces the meeting link.
func (s *Store) UpdateSessionLink(_ context.Context, sessionID, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	sess.MeetingLink = link
	s.sessions[sessionID] = sess
	return nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.sessions, sessionID)
	s.sessionOrder = slices.DeleteFunc(s.sessionOrder, func(id string) bool { return id == sessionID })
	return nil
}

// ListSessionsByTeam returns a team's sessions by scheduled time.
func (s *Store) ListSessionsByTeam(_ context.Context, teamID string) ([]domain.Session, error) {
	return s.listSessions(func(sess domain.Session) bool { return sess.TeamID == teamID }), nil
}

// ListSessionsByMentor returns a mentor's sessions by scheduled time.
func (s *Store) ListSessionsByMentor(_ context.Context, mentorID string) ([]domain.Session, error) {
	return s.listSessions(func(sess domain.Session) bool { return sess.MentorID == mentorID }), nil
}

func (s *Store) listSessions(keep func(domain.Session) bool) []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0)
	for _, id := range s.sessionOrder {
		if sess := s.sessions[id]; keep(sess) {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	sub.FileIDs = slices.Clone(sub.FileIDs)
	if sub.Rubric != nil {
		r := *sub.Rubric
		sub.Rubric = &r
	}
	if sub.FinalScore != nil {
		v := *sub.FinalScore
		sub.FinalScore = &v
	}
	return sub
}
