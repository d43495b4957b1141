package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
	"github.com/splax/skillsync/internal/service/workflow"
	"github.com/splax/skillsync/internal/teamlock"
)

// Store is the persistence the registry needs.
type Store interface {
	repository.TeamRepository
	repository.SubmissionRepository
}

// Config captures registry quotas.
type Config struct {
	// MentorTeamLimit caps teams per mentor; 0 disables the cap.
	MentorTeamLimit int
}

// CreateInput describes a new team.
type CreateInput struct {
	Name           string   `json:"name"`
	Capacity       int      `json:"capacity"`
	RequiredSkills []string `json:"required_skills"`
	MentorID       string   `json:"mentor_id"`
}

// Detail is a team together with its current submission, if any.
type Detail struct {
	Team       *domain.Team       `json:"team"`
	Submission *domain.Submission `json:"submission,omitempty"`
}

// Service handles team workflows.
type Service struct {
	store  Store
	locker teamlock.Locker
	cfg    Config
	logger *slog.Logger
}

// New constructs a Service.
func New(store Store, locker teamlock.Locker, cfg Config, logger *slog.Logger) Service {
	return Service{store: store, locker: locker, cfg: cfg, logger: logger.With("component", "team")}
}

// Create registers a team with the calling student as creator and first member.
func (s Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.Team, error) {
	if err := access.RequireStudent(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	mentorID := strings.TrimSpace(in.MentorID)
	skills := normalizeSkills(in.RequiredSkills)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: team name is required", domain.ErrValidation)
	case mentorID == "":
		return nil, fmt.Errorf("%w: mentor id is required", domain.ErrValidation)
	case in.Capacity < 1:
		return nil, fmt.Errorf("%w: capacity must be at least 1", domain.ErrValidation)
	case len(skills) == 0:
		return nil, fmt.Errorf("%w: at least one required skill is needed", domain.ErrValidation)
	}

	// serializes the quota check per mentor
	release, err := access.Lock(ctx, s.locker, "mentor:"+mentorID)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.cfg.MentorTeamLimit > 0 {
		assigned, err := s.store.ListTeamsByMentor(ctx, mentorID)
		if err != nil {
			return nil, err
		}
		if len(assigned) >= s.cfg.MentorTeamLimit {
			return nil, fmt.Errorf("%w: mentor %s already guides %d teams", domain.ErrCapacity, mentorID, len(assigned))
		}
	}

	now := time.Now().UTC()
	team := &domain.Team{
		ID:             uuid.NewString(),
		Name:           name,
		CreatorID:      actor.UserID,
		Members:        []domain.Member{{UserID: actor.UserID, Name: actor.DisplayName(), JoinedAt: now}},
		Capacity:       in.Capacity,
		RequiredSkills: skills,
		MentorID:       mentorID,
		ProjectMeta:    domain.ProjectMeta{TechStack: []string{}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	team.ReviewStatus = workflow.InitialStatus(team)
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return nil, access.Translate(err, "team")
	}
	s.logger.Info("team created", "team_id", team.ID, "creator_id", actor.UserID, "mentor_id", mentorID, "capacity", team.Capacity)
	return team, nil
}

// Join appends the calling student to the roster.
func (s Service) Join(ctx context.Context, actor domain.Actor, teamID string) (*domain.Team, error) {
	if err := access.RequireStudent(actor); err != nil {
		return nil, err
	}
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := workflow.EnsureEditable(team, "join"); err != nil {
		return nil, err
	}
	if team.HasMember(actor.UserID) {
		return nil, fmt.Errorf("%w: already a member of team %s", domain.ErrConflict, team.ID)
	}
	if team.IsFull() {
		return nil, fmt.Errorf("%w: team %s is full (%d/%d)", domain.ErrCapacity, team.ID, len(team.Members), team.Capacity)
	}

	team.Members = append(team.Members, domain.Member{UserID: actor.UserID, Name: actor.DisplayName(), JoinedAt: time.Now().UTC()})
	workflow.ApplyMembership(team)
	if err := s.store.SaveTeam(ctx, team); err != nil {
		return nil, access.Translate(err, "team "+team.ID)
	}
	s.logger.Info("team joined", "team_id", team.ID, "user_id", actor.UserID, "members", len(team.Members), "status", team.ReviewStatus)
	return team, nil
}

// ListJoinable returns teams the caller could join right now.
func (s Service) ListJoinable(ctx context.Context, actor domain.Actor) ([]domain.Team, error) {
	teams, err := s.store.ListTeamsWithoutMember(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(teams, func(t domain.Team) bool {
		return workflow.IsLocked(&t) || t.IsFull()
	}), nil
}

// ListMine returns a student's teams or a mentor's assigned teams.
func (s Service) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Team, error) {
	if actor.IsMentor() {
		return s.store.ListTeamsByMentor(ctx, actor.UserID)
	}
	return s.store.ListTeamsByMember(ctx, actor.UserID)
}

// Detail returns the team with its latest submission.
func (s Service) Detail(ctx context.Context, actor domain.Actor, teamID string) (*Detail, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, err
	}
	detail := &Detail{Team: team}
	sub, err := s.store.LatestSubmission(ctx, team.ID)
	switch {
	case err == nil:
		detail.Submission = sub
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return detail, nil
}

// UpdateProjectMeta replaces the project overview. Creator only, and only
// while the team is unlocked.
func (s Service) UpdateProjectMeta(ctx context.Context, actor domain.Actor, teamID string, meta domain.ProjectMeta) (*domain.Team, error) {
	meta, err := normalizeMeta(meta)
	if err != nil {
		return nil, err
	}
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireCreator(actor, team); err != nil {
		return nil, err
	}
	if err := workflow.EnsureEditable(team, "edit project details"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	meta.UpdatedAt = &now
	team.ProjectMeta = meta
	if err := s.store.SaveTeam(ctx, team); err != nil {
		return nil, access.Translate(err, "team "+team.ID)
	}
	s.logger.Info("project details updated", "team_id", team.ID, "user_id", actor.UserID)
	return team, nil
}

func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	for _, skill := range in {
		skill = strings.TrimSpace(skill)
		if skill == "" || slices.ContainsFunc(out, func(s string) bool { return strings.EqualFold(s, skill) }) {
			continue
		}
		out = append(out, skill)
	}
	return out
}

func normalizeMeta(meta domain.ProjectMeta) (domain.ProjectMeta, error) {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.ProblemStatement = strings.TrimSpace(meta.ProblemStatement)
	meta.SolutionSummary = strings.TrimSpace(meta.SolutionSummary)
	meta.TechStack = normalizeSkills(meta.TechStack)
	for _, link := range []*string{&meta.RepoURL, &meta.LiveURL} {
		*link = strings.TrimSpace(*link)
		if *link == "" {
			continue
		}
		u, err := url.Parse(*link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return meta, fmt.Errorf("%w: %q is not an http(s) link", domain.ErrValidation, *link)
		}
	}
	return meta, nil
}
