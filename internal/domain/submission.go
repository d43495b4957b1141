package domain

import "time"

const (
	// MaxRubricScore bounds a single rubric dimension.
	MaxRubricScore = 10
	// MaxFinalScore bounds the rubric total.
	MaxFinalScore = 40
)

// Rubric holds the four mentor-graded dimensions.
type Rubric struct {
	Problem        int `json:"problem"`
	Implementation int `json:"implementation"`
	Teamwork       int `json:"teamwork"`
	Presentation   int `json:"presentation"`
}

// Scores returns the dimensions in a fixed order.
func (r Rubric) Scores() []int {
	return []int{r.Problem, r.Implementation, r.Teamwork, r.Presentation}
}

// Total sums the dimensions clamped to [0, MaxFinalScore].
func (r Rubric) Total() int {
	total := 0
	for _, s := range r.Scores() {
		total += s
	}
	return min(max(total, 0), MaxFinalScore)
}

// Submission is one review attempt of a team's work.
type Submission struct {
	ID             string       `json:"id"`
	TeamID         string       `json:"team_id"`
	Attempt        int          `json:"attempt"`
	Status         ReviewStatus `json:"status"`
	FileIDs        []string     `json:"file_ids"`
	Rubric         *Rubric      `json:"rubric,omitempty"`
	FinalScore     *int         `json:"final_score,omitempty"`
	MentorFeedback string       `json:"mentor_feedback"`
	SubmittedAt    time.Time    `json:"submitted_at"`
	GradedAt       *time.Time   `json:"graded_at,omitempty"`
	DecidedAt      *time.Time   `json:"decided_at,omitempty"`
}
