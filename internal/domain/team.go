package domain

import (
	"slices"
	"time"
)

// ReviewStatus tracks where a team sits in the review lifecycle.
type ReviewStatus string

const (
	StatusForming   ReviewStatus = "forming"
	StatusActive    ReviewStatus = "active"
	StatusSubmitted ReviewStatus = "submitted"
	StatusApproved  ReviewStatus = "approved"
	StatusRejected  ReviewStatus = "rejected"
)

// Valid reports whether the status is a known lifecycle state.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusForming, StatusActive, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Team represents a student project group with an assigned mentor.
type Team struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	CreatorID      string       `json:"creator_id"`
	Members        []Member     `json:"members"`
	Capacity       int          `json:"capacity"`
	RequiredSkills []string     `json:"required_skills"`
	MentorID       string       `json:"mentor_id"`
	ReviewStatus   ReviewStatus `json:"review_status"`
	ProjectMeta    ProjectMeta  `json:"project_meta"`
	MentorNotes    string       `json:"-"`
	Resubmissions  int          `json:"resubmissions"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Version        int64        `json:"-"`
}

// Member links a user to a team in join order.
type Member struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// ProjectMeta is the creator-maintained project overview.
type ProjectMeta struct {
	Title            string     `json:"title"`
	ProblemStatement string     `json:"problem_statement"`
	SolutionSummary  string     `json:"solution_summary"`
	TechStack        []string   `json:"tech_stack"`
	RepoURL          string     `json:"repo_url,omitempty"`
	LiveURL          string     `json:"live_url,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// MemberIDs returns member user ids in join order.
func (t *Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasMember reports whether userID is a current member.
func (t *Team) HasMember(userID string) bool {
	return slices.ContainsFunc(t.Members, func(m Member) bool { return m.UserID == userID })
}

// IsFull reports whether the roster reached capacity.
func (t *Team) IsFull() bool {
	return len(t.Members) >= t.Capacity
}

// CanView reports whether userID may read team resources.
func (t *Team) CanView(userID string) bool {
	return t.HasMember(userID) || t.MentorID == userID
}

// Clone returns a deep copy safe to mutate.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Members = slices.Clone(t.Members)
	cp.RequiredSkills = slices.Clone(t.RequiredSkills)
	cp.ProjectMeta.TechStack = slices.Clone(t.ProjectMeta.TechStack)
	if t.ProjectMeta.UpdatedAt != nil {
		ts := *t.ProjectMeta.UpdatedAt
		cp.ProjectMeta.UpdatedAt = &ts
	}
	return &cp
}
