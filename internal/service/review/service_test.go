package review

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/splax/skillsync/internal/blob"
	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository/memory"
	"github.com/splax/skillsync/internal/service/files"
	"github.com/splax/skillsync/internal/service/team"
	"github.com/splax/skillsync/internal/service/workflow"
	"github.com/splax/skillsync/internal/teamlock"
)

var (
	a      = domain.Actor{UserID: "a", Name: "Ada", Role: domain.RoleStudent}
	b      = domain.Actor{UserID: "b", Name: "Ben", Role: domain.RoleStudent}
	c      = domain.Actor{UserID: "c", Name: "Cy", Role: domain.RoleStudent}
	d      = domain.Actor{UserID: "d", Name: "Dee", Role: domain.RoleStudent}
	mentor = domain.Actor{UserID: "m1", Name: "Mina", Role: domain.RoleMentor}
	rival  = domain.Actor{UserID: "m2", Name: "Max", Role: domain.RoleMentor}
)

type engine struct {
	teams    team.Service
	files    files.Service
	workflow workflow.Service
	review   Service
}

func newEngine(t *testing.T) engine {
	t.Helper()
	store := memory.New()
	locker := teamlock.NewLocal()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	disk, err := blob.NewDisk(t.TempDir())
	require.NoError(t, err)

	wf := workflow.New(store, locker, workflow.Config{ResubmissionLimit: workflow.DefaultResubmissionLimit}, logger)
	return engine{
		teams:    team.New(store, locker, team.Config{}, logger),
		files:    files.New(store, disk, locker, files.Config{}, logger),
		workflow: wf,
		review:   New(store, locker, wf, logger),
	}
}

func (e engine) upload(t *testing.T, actor domain.Actor, teamID, name string) error {
	t.Helper()
	_, err := e.files.Upload(context.Background(), actor, teamID, files.UploadInput{Filename: name, Body: strings.NewReader(name)})
	return err
}

func TestReviewLifecycleScenario(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	created, err := e.teams.Create(ctx, a, team.CreateInput{Name: "Atlas", Capacity: 3, RequiredSkills: []string{"go"}, MentorID: mentor.UserID})
	require.NoError(t, err)
	_, err = e.teams.Join(ctx, b, created.ID)
	require.NoError(t, err)
	_, err = e.teams.Join(ctx, c, created.ID)
	require.NoError(t, err)
	_, err = e.teams.Join(ctx, d, created.ID)
	require.ErrorIs(t, err, domain.ErrCapacity)

	require.NoError(t, e.upload(t, a, created.ID, "F1.pdf"))
	sub, err := e.workflow.Submit(ctx, a, created.ID)
	require.NoError(t, err)
	require.Len(t, sub.FileIDs, 1)

	require.ErrorIs(t, e.upload(t, b, created.ID, "F2.pdf"), domain.ErrState)

	graded, err := e.review.PostRubric(ctx, mentor, created.ID, domain.Rubric{Problem: 7, Implementation: 8, Teamwork: 6, Presentation: 9})
	require.NoError(t, err)
	require.Equal(t, 30, *graded.FinalScore)

	decided, err := e.review.PostDecision(ctx, mentor, created.ID, domain.StatusRejected, "needs more tests")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, decided.Status)
	require.Equal(t, 30, *decided.FinalScore)

	detail, err := e.teams.Detail(ctx, b, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, detail.Team.ReviewStatus)
	require.Equal(t, "needs more tests", detail.Submission.MentorFeedback)

	// rejection reopens the team for rework
	require.NoError(t, e.upload(t, b, created.ID, "F2.pdf"))
}

func TestPostRubricRules(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created, err := e.teams.Create(ctx, a, team.CreateInput{Name: "Atlas", Capacity: 2, RequiredSkills: []string{"go"}, MentorID: mentor.UserID})
	require.NoError(t, err)

	_, err = e.review.PostRubric(ctx, mentor, created.ID, domain.Rubric{Problem: 11})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.review.PostRubric(ctx, mentor, created.ID, domain.Rubric{Teamwork: -1})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.review.PostRubric(ctx, mentor, created.ID, domain.Rubric{Problem: 5})
	require.ErrorIs(t, err, domain.ErrState, "nothing submitted yet")

	require.NoError(t, e.upload(t, a, created.ID, "F1.pdf"))
	_, err = e.workflow.Submit(ctx, a, created.ID)
	require.NoError(t, err)

	_, err = e.review.PostRubric(ctx, rival, created.ID, domain.Rubric{Problem: 5})
	require.ErrorIs(t, err, domain.ErrPermission)
	_, err = e.review.PostRubric(ctx, a, created.ID, domain.Rubric{Problem: 5})
	require.ErrorIs(t, err, domain.ErrPermission)

	full, err := e.review.PostRubric(ctx, mentor, created.ID, domain.Rubric{Problem: 10, Implementation: 10, Teamwork: 10, Presentation: 10})
	require.NoError(t, err)
	require.Equal(t, domain.MaxFinalScore, *full.FinalScore)

	_, err = e.review.PostDecision(ctx, rival, created.ID, domain.StatusApproved, "")
	require.ErrorIs(t, err, domain.ErrPermission)
	_, err = e.review.PostDecision(ctx, mentor, created.ID, domain.StatusApproved, "ship it")
	require.NoError(t, err)

	_, err = e.review.PostRubric(ctx, mentor, created.ID, domain.Rubric{Problem: 1})
	require.ErrorIs(t, err, domain.ErrState, "approved results are read-only")
}

func TestNotesPendingAndSubmissions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	first, err := e.teams.Create(ctx, a, team.CreateInput{Name: "Atlas", Capacity: 2, RequiredSkills: []string{"go"}, MentorID: mentor.UserID})
	require.NoError(t, err)
	second, err := e.teams.Create(ctx, b, team.CreateInput{Name: "Borealis", Capacity: 2, RequiredSkills: []string{"go"}, MentorID: mentor.UserID})
	require.NoError(t, err)

	require.NoError(t, e.review.SaveNotes(ctx, mentor, first.ID, "  strong backend  "))
	notes, err := e.review.Notes(ctx, mentor, first.ID)
	require.NoError(t, err)
	require.Equal(t, "strong backend", notes)
	_, err = e.review.Notes(ctx, a, first.ID)
	require.ErrorIs(t, err, domain.ErrPermission)
	require.ErrorIs(t, e.review.SaveNotes(ctx, rival, first.ID, "x"), domain.ErrPermission)

	pending, err := e.review.Pending(ctx, mentor)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, e.upload(t, b, second.ID, "deck.pdf"))
	_, err = e.workflow.Submit(ctx, b, second.ID)
	require.NoError(t, err)

	pending, err = e.review.Pending(ctx, mentor)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	_, err = e.review.Pending(ctx, a)
	require.ErrorIs(t, err, domain.ErrPermission)

	subs, err := e.review.Submissions(ctx, b, second.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	_, err = e.review.Submissions(ctx, a, second.ID)
	require.ErrorIs(t, err, domain.ErrPermission)
}
