// Package storetest holds behaviour checks shared by every repository.Store
// backend.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) repository.Store

// Run exercises the full Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("teams", func(t *testing.T) { testTeams(t, newStore(t)) })
	t.Run("files", func(t *testing.T) { testFiles(t, newStore(t)) })
	t.Run("chat", func(t *testing.T) { testChat(t, newStore(t)) })
	t.Run("submissions", func(t *testing.T) { testSubmissions(t, newStore(t)) })
	t.Run("review commits", func(t *testing.T) { testReviewCommits(t, newStore(t)) })
	t.Run("appreciations", func(t *testing.T) { testAppreciations(t, newStore(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// SeedTeam stores a forming team created by creatorID.
func SeedTeam(t *testing.T, store repository.Store, id, creatorID string, capacity int, createdAt time.Time) *domain.Team {
	t.Helper()
	team := &domain.Team{
		ID:             id,
		Name:           "team " + id,
		CreatorID:      creatorID,
		Members:        []domain.Member{{UserID: creatorID, Name: creatorID, JoinedAt: createdAt}},
		Capacity:       capacity,
		RequiredSkills: []string{"go", "sql"},
		MentorID:       "mentor-1",
		ReviewStatus:   domain.StatusForming,
		ProjectMeta:    domain.ProjectMeta{TechStack: []string{}},
		CreatedAt:      createdAt,
	}
	require.NoError(t, store.CreateTeam(context.Background(), team))
	return team
}

func testTeams(t *testing.T, store repository.Store) {
	ctx := context.Background()
	first := SeedTeam(t, store, "t1", "alice", 2, base)
	require.EqualValues(t, 1, first.Version)
	SeedTeam(t, store, "t2", "bob", 3, base.Add(time.Minute))

	err := store.CreateTeam(ctx, &domain.Team{ID: "t1", Name: "dup", CreatorID: "x", Capacity: 1, MentorID: "m", ReviewStatus: domain.StatusForming, CreatedAt: base})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	got, err := store.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "team t1", got.Name)
	require.Equal(t, []string{"go", "sql"}, got.RequiredSkills)
	require.Equal(t, []string{"alice"}, got.MemberIDs())
	require.Equal(t, domain.StatusForming, got.ReviewStatus)
	require.True(t, got.CreatedAt.Equal(base))

	_, err = store.GetTeam(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	got.Members = append(got.Members, domain.Member{UserID: "carol", Name: "Carol", JoinedAt: base.Add(time.Hour)})
	got.ReviewStatus = domain.StatusActive
	got.ProjectMeta.Title = "Skill graph"
	got.MentorNotes = "watch scope"
	stale := got.Clone()
	require.NoError(t, store.SaveTeam(ctx, got))
	require.EqualValues(t, 2, got.Version)

	require.ErrorIs(t, store.SaveTeam(ctx, stale), repository.ErrConflict)
	require.ErrorIs(t, store.SaveTeam(ctx, &domain.Team{ID: "nope", Version: 1}), repository.ErrNotFound)

	reloaded, err := store.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, reloaded.MemberIDs())
	require.Equal(t, domain.StatusActive, reloaded.ReviewStatus)
	require.Equal(t, "Skill graph", reloaded.ProjectMeta.Title)
	require.Equal(t, "watch scope", reloaded.MentorNotes)
	require.EqualValues(t, 2, reloaded.Version)

	mine, err := store.ListTeamsByMember(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "t1", mine[0].ID)

	mentored, err := store.ListTeamsByMentor(ctx, "mentor-1")
	require.NoError(t, err)
	require.Len(t, mentored, 2)
	require.Equal(t, "t2", mentored[0].ID, "newest first")

	joinable, err := store.ListTeamsWithoutMember(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, joinable, 1)
	require.Equal(t, "t2", joinable[0].ID)
	require.Equal(t, []string{"bob"}, joinable[0].MemberIDs())
}

func testFiles(t *testing.T, store repository.Store) {
	ctx := context.Background()
	SeedTeam(t, store, "t1", "alice", 3, base)

	for i := 1; i <= 3; i++ {
		rec := &domain.FileRecord{
			ID:          fmt.Sprintf("f%d", i),
			TeamID:      "t1",
			Filename:    fmt.Sprintf("doc-%d.pdf", i),
			ContentType: "application/pdf",
			SizeBytes:   int64(i * 100),
			StorageKey:  fmt.Sprintf("t1/f%d", i),
			UploadedBy:  "alice",
			UploadedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.InsertFile(ctx, rec))
		require.Positive(t, rec.Seq)
	}

	files, err := store.ListFiles(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Less(t, files[0].Seq, files[1].Seq)
	require.Equal(t, "doc-1.pdf", files[0].Filename)

	deleted, err := store.MarkFileDeleted(ctx, "t1", "f2")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.MarkFileDeleted(ctx, "t1", "f2")
	require.NoError(t, err)
	require.False(t, deleted)

	_, err = store.MarkFileDeleted(ctx, "t1", "ghost")
	require.ErrorIs(t, err, repository.ErrNotFound)

	tomb, err := store.GetFile(ctx, "t1", "f2")
	require.NoError(t, err)
	require.True(t, tomb.Deleted())

	files, err = store.ListFiles(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "f1", files[0].ID)
	require.Equal(t, "f3", files[1].ID)

	_, err = store.GetFile(ctx, "t2", "f1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func testChat(t *testing.T, store repository.Store) {
	ctx := context.Background()
	SeedTeam(t, store, "t1", "alice", 3, base)
	SeedTeam(t, store, "t2", "bob", 3, base)

	for i := 1; i <= 5; i++ {
		msg := &domain.ChatMessage{
			ID:         fmt.Sprintf("m%d", i),
			TeamID:     "t1",
			SenderID:   "alice",
			SenderName: "Alice",
			Text:       fmt.Sprintf("hello %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendMessage(ctx, msg))
		require.EqualValues(t, i, msg.Seq)
	}
	other := &domain.ChatMessage{ID: "o1", TeamID: "t2", SenderID: "bob", Text: "hi", CreatedAt: base}
	require.NoError(t, store.AppendMessage(ctx, other))
	require.EqualValues(t, 1, other.Seq, "sequence is per team")

	all, err := store.ListMessages(ctx, "t1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "hello 1", all[0].Text)

	page, err := store.ListMessages(ctx, "t1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.EqualValues(t, 3, page[0].Seq)
	require.EqualValues(t, 4, page[1].Seq)

	tail, err := store.ListMessages(ctx, "t1", 5, 10)
	require.NoError(t, err)
	require.Empty(t, tail)
}

func testSubmissions(t *testing.T, store repository.Store) {
	ctx := context.Background()
	SeedTeam(t, store, "t1", "alice", 1, base)

	_, err := store.LatestSubmission(ctx, "t1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	first := &domain.Submission{ID: "s1", TeamID: "t1", Attempt: 1, Status: domain.StatusSubmitted, FileIDs: []string{"f1"}, SubmittedAt: base}
	require.NoError(t, store.CreateSubmission(ctx, first))

	graded := base.Add(time.Hour)
	score := 30
	first.Rubric = &domain.Rubric{Problem: 7, Implementation: 8, Teamwork: 6, Presentation: 9}
	first.FinalScore = &score
	first.GradedAt = &graded
	first.Status = domain.StatusRejected
	first.MentorFeedback = "tighten the demo"
	first.DecidedAt = &graded
	require.NoError(t, store.UpdateSubmission(ctx, first))

	second := &domain.Submission{ID: "s2", TeamID: "t1", Attempt: 2, Status: domain.StatusSubmitted, FileIDs: []string{}, SubmittedAt: base.Add(2 * time.Hour)}
	require.NoError(t, store.CreateSubmission(ctx, second))

	latest, err := store.LatestSubmission(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "s2", latest.ID)
	require.Nil(t, latest.Rubric)
	require.Nil(t, latest.FinalScore)

	subs, err := store.ListSubmissions(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, "s1", subs[1].ID)
	require.Equal(t, domain.StatusRejected, subs[1].Status)
	require.NotNil(t, subs[1].Rubric)
	require.Equal(t, 30, subs[1].Rubric.Total())
	require.Equal(t, 30, *subs[1].FinalScore)
	require.Equal(t, "tighten the demo", subs[1].MentorFeedback)
	require.True(t, subs[1].GradedAt.Equal(graded))

	require.ErrorIs(t, store.UpdateSubmission(ctx, &domain.Submission{ID: "nope", TeamID: "t1"}), repository.ErrNotFound)
}

func testReviewCommits(t *testing.T, store repository.Store) {
	ctx := context.Background()
	SeedTeam(t, store, "t1", "alice", 1, base)
	team, err := store.GetTeam(ctx, "t1")
	require.NoError(t, err)
	stale := team.Clone()

	team.ReviewStatus = domain.StatusSubmitted
	first := &domain.Submission{ID: "s1", TeamID: "t1", Attempt: 1, Status: domain.StatusSubmitted, FileIDs: []string{"f1"}, SubmittedAt: base}
	require.NoError(t, store.RecordSubmission(ctx, team, first))
	require.EqualValues(t, 2, team.Version)

	stale.ReviewStatus = domain.StatusSubmitted
	orphan := &domain.Submission{ID: "s2", TeamID: "t1", Attempt: 2, Status: domain.StatusSubmitted, FileIDs: []string{"f1"}, SubmittedAt: base}
	require.ErrorIs(t, store.RecordSubmission(ctx, stale, orphan), repository.ErrConflict)
	subs, err := store.ListSubmissions(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, subs, 1, "a rejected team write must not leave its submission behind")
	require.EqualValues(t, 1, stale.Version)

	decided := base.Add(time.Hour)
	first.Status = domain.StatusRejected
	first.DecidedAt = &decided
	stale = team.Clone()
	stale.Version = 1
	stale.ReviewStatus = domain.StatusRejected
	require.ErrorIs(t, store.RecordDecision(ctx, stale, first), repository.ErrConflict)
	latest, err := store.LatestSubmission(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSubmitted, latest.Status)

	missing := &domain.Submission{ID: "nope", TeamID: "t1", Status: domain.StatusApproved}
	unchanged := team.Clone()
	unchanged.ReviewStatus = domain.StatusApproved
	require.ErrorIs(t, store.RecordDecision(ctx, unchanged, missing), repository.ErrNotFound)
	got, err := store.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSubmitted, got.ReviewStatus)
	require.EqualValues(t, 2, got.Version)

	team.ReviewStatus = domain.StatusRejected
	require.NoError(t, store.RecordDecision(ctx, team, first))
	require.EqualValues(t, 3, team.Version)
	latest, err = store.LatestSubmission(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, latest.Status)
	got, err = store.GetTeam(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, got.ReviewStatus)
}

func testAppreciations(t *testing.T, store repository.Store) {
	ctx := context.Background()
	SeedTeam(t, store, "t1", "alice", 3, base)

	notes := []domain.Appreciation{
		{ID: "a1", TeamID: "t1", FromUser: "alice", ToUser: "bob", Message: "great api", CreatedAt: base},
		{ID: "a2", TeamID: "t1", FromUser: "carol", ToUser: "bob", Message: "thanks for the review", CreatedAt: base.Add(time.Minute)},
		{ID: "a3", TeamID: "t1", FromUser: "bob", ToUser: "alice", Message: "nice slides", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range notes {
		require.NoError(t, store.CreateAppreciation(ctx, &notes[i]))
	}

	got, err := store.ListAppreciationsTo(ctx, "t1", "bob")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a2", got[0].ID)
	require.Equal(t, "a1", got[1].ID)

	none, err := store.ListAppreciationsTo(ctx, "t1", "dave")
	require.NoError(t, err)
	require.Empty(t, none)

	SeedTeam(t, store, "t2", "erin", 3, base)
	other := &domain.Appreciation{ID: "a4", TeamID: "t2", FromUser: "erin", ToUser: "bob", Message: "good pairing", CreatedAt: base.Add(30 * time.Second)}
	require.NoError(t, store.CreateAppreciation(ctx, other))

	inTeam, err := store.ListAppreciationsTo(ctx, "t1", "bob")
	require.NoError(t, err)
	require.Len(t, inTeam, 2)

	everywhere, err := store.ListAppreciationsReceived(ctx, "bob")
	require.NoError(t, err)
	ids := make([]string, 0, len(everywhere))
	for _, a := range everywhere {
		ids = append(ids, a.ID)
	}
	require.Equal(t, []string{"a2", "a4", "a1"}, ids)
	require.Equal(t, "t2", everywhere[1].TeamID)

	nobody, err := store.ListAppreciationsReceived(ctx, "dave")
	require.NoError(t, err)
	require.Empty(t, nobody)
}

func testSessions(t *testing.T, store repository.Store) {
	ctx := context.Background()
	SeedTeam(t, store, "t1", "alice", 3, base)

	late := &domain.Session{ID: "s-late", TeamID: "t1", MentorID: "mentor-1", ScheduledAt: base.Add(48 * time.Hour), CreatedAt: base}
	early := &domain.Session{ID: "s-early", TeamID: "t1", MentorID: "mentor-1", ScheduledAt: base.Add(24 * time.Hour), MeetingLink: "https://meet.example/abc", CreatedAt: base}
	require.NoError(t, store.CreateSession(ctx, late))
	require.NoError(t, store.CreateSession(ctx, early))

	byTeam, err := store.ListSessionsByTeam(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, byTeam, 2)
	require.Equal(t, "s-early", byTeam[0].ID)
	require.Equal(t, "https://meet.example/abc", byTeam[0].MeetingLink)

	require.NoError(t, store.UpdateSessionLink(ctx, "s-late", "https://meet.example/xyz"))
	got, err := store.GetSession(ctx, "s-late")
	require.NoError(t, err)
	require.Equal(t, "https://meet.example/xyz", got.MeetingLink)

	require.NoError(t, store.DeleteSession(ctx, "s-early"))
	require.ErrorIs(t, store.DeleteSession(ctx, "s-early"), repository.ErrNotFound)
	require.ErrorIs(t, store.UpdateSessionLink(ctx, "s-early", "x"), repository.ErrNotFound)

	byMentor, err := store.ListSessionsByMentor(ctx, "mentor-1")
	require.NoError(t, err)
	require.Len(t, byMentor, 1)
	require.Equal(t, "s-late", byMentor[0].ID)
}
