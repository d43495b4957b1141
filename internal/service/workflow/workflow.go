// Package workflow owns the review lifecycle of a team:
//
//	forming -> active -> submitted -> approved
//	                              \-> rejected -> submitted (bounded resubmission)
//
// No other package assigns Team.ReviewStatus.
package workflow

import (
	"fmt"

	"github.com/splax/skillsync/internal/domain"
)

// DefaultResubmissionLimit bounds how often a rejected team may resubmit.
const DefaultResubmissionLimit = 3

// IsLocked reports whether students are barred from mutating the team.
func IsLocked(team *domain.Team) bool {
	return team.ReviewStatus == domain.StatusSubmitted || team.ReviewStatus == domain.StatusApproved
}

// IsOpen reports whether the team may still be submitted for review.
func IsOpen(team *domain.Team) bool {
	switch team.ReviewStatus {
	case domain.StatusForming, domain.StatusActive, domain.StatusRejected:
		return true
	}
	return false
}

// EnsureEditable returns a StateError when the team is locked.
func EnsureEditable(team *domain.Team, action string) error {
	if IsLocked(team) {
		return fmt.Errorf("%w: cannot %s while team is %s", domain.ErrState, action, team.ReviewStatus)
	}
	return nil
}

// InitialStatus is the status of a freshly created team.
func InitialStatus(team *domain.Team) domain.ReviewStatus {
	if team.IsFull() {
		return domain.StatusActive
	}
	return domain.StatusForming
}

// ApplyMembership re-derives forming/active after a roster change. Other
// states are left untouched.
func ApplyMembership(team *domain.Team) {
	switch team.ReviewStatus {
	case domain.StatusForming, domain.StatusActive:
		team.ReviewStatus = InitialStatus(team)
	}
}

func validOutcome(outcome domain.ReviewStatus) bool {
	return outcome == domain.StatusApproved || outcome == domain.StatusRejected
}
