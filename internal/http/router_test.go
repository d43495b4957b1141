package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/skillsync/internal/blob"
	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository/memory"
	"github.com/splax/skillsync/internal/service/appreciation"
	"github.com/splax/skillsync/internal/service/chat"
	"github.com/splax/skillsync/internal/service/files"
	"github.com/splax/skillsync/internal/service/review"
	"github.com/splax/skillsync/internal/service/session"
	"github.com/splax/skillsync/internal/service/team"
	"github.com/splax/skillsync/internal/service/workflow"
	"github.com/splax/skillsync/internal/teamlock"
	"github.com/splax/skillsync/internal/ws"
	jwtpkg "github.com/splax/skillsync/pkg/jwt"
)

const testSecret = "router-test-secret"

type testEnv struct {
	router *Router
	store  *memory.Store
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, limiter RateLimiter) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	locker := teamlock.NewLocal()
	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	disk, err := blob.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	wf := workflow.New(store, locker, workflow.Config{ResubmissionLimit: 3}, logger)
	svc := Services{
		Team:         team.New(store, locker, team.Config{}, logger),
		Files:        files.New(store, disk, locker, files.Config{MaxUploadBytes: 1 << 20}, logger),
		Workflow:     wf,
		Chat:         chat.New(store, teamlock.NewLocal(), hub, nil, chat.Config{}, logger),
		Review:       review.New(store, locker, wf, logger),
		Appreciation: appreciation.New(store, hub, logger),
		Sessions:     session.New(store, logger),
		Hub:          hub,
	}
	if limiter == nil {
		limiter = newRateLimiterStub()
	}
	router := NewRouter(logger, JWTAuthorizer{Secret: testSecret}, svc, Options{
		Limiter:   limiter,
		Registry:  prometheus.NewRegistry(),
		Heartbeat: 50 * time.Millisecond,
	})
	t.Cleanup(router.Close)
	return testEnv{router: router, store: store, hub: hub}
}

func token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	tok, err := jwtpkg.GenerateToken(userID, string(role), strings.ToUpper(userID), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (e testEnv) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) upload(t *testing.T, teamID, tok, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/team-files/"+teamID, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectKind(t *testing.T, rr *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decode[map[string]string](t, rr)
	if body["kind"] != kind {
		t.Fatalf("expected kind %q, got %q", kind, body["kind"])
	}
}

func (e testEnv) createTeam(t *testing.T, tok string, capacity int) domain.Team {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/teams", tok, team.CreateInput{
		Name:           "Atlas",
		Capacity:       capacity,
		RequiredSkills: []string{"go"},
		MentorID:       "m1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create team: %d %s", rr.Code, rr.Body.String())
	}
	return decode[domain.Team](t, rr)
}

func TestRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do(t, http.MethodGet, "/teams", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/teams", "garbage", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
	bogus, _ := jwtpkg.GenerateToken("u1", "admin", "", testSecret, time.Hour)
	if rr := env.do(t, http.MethodGet, "/teams", bogus, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown role, got %d", rr.Code)
	}
	// query tokens are only honoured on stream endpoints
	req := httptest.NewRequest(http.MethodGet, "/teams?token="+token(t, "a", domain.RoleStudent), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token, got %d", rr.Code)
	}
}

func TestTeamLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	b := token(t, "b", domain.RoleStudent)
	c := token(t, "c", domain.RoleStudent)
	d := token(t, "d", domain.RoleStudent)
	m := token(t, "m1", domain.RoleMentor)

	created := env.createTeam(t, a, 3)
	if created.ReviewStatus != domain.StatusForming {
		t.Fatalf("unexpected status %s", created.ReviewStatus)
	}

	joinable := decode[[]domain.Team](t, env.do(t, http.MethodGet, "/teams?scope=joinable", b, nil))
	if len(joinable) != 1 {
		t.Fatalf("expected one joinable team, got %d", len(joinable))
	}

	for _, tok := range []string{b, c} {
		if rr := env.do(t, http.MethodPost, "/teams/"+created.ID+"/join", tok, nil); rr.Code != http.StatusOK {
			t.Fatalf("join: %d %s", rr.Code, rr.Body.String())
		}
	}
	expectKind(t, env.do(t, http.MethodPost, "/teams/"+created.ID+"/join", d, nil), http.StatusConflict, "capacity")

	if rr := env.upload(t, created.ID, a, "F1.pdf", "slides"); rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, "/teams/"+created.ID+"/submit", a, nil); rr.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rr.Code, rr.Body.String())
	}
	expectKind(t, env.upload(t, created.ID, b, "F2.pdf", "late"), http.StatusConflict, "state")

	pending := decode[[]domain.Team](t, env.do(t, http.MethodGet, "/mentor/reviews", m, nil))
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Fatalf("unexpected pending queue: %+v", pending)
	}

	rr := env.do(t, http.MethodPost, "/mentor/rubric/"+created.ID, m, domain.Rubric{Problem: 7, Implementation: 8, Teamwork: 6, Presentation: 9})
	if rr.Code != http.StatusOK {
		t.Fatalf("rubric: %d %s", rr.Code, rr.Body.String())
	}
	if graded := decode[domain.Submission](t, rr); graded.FinalScore == nil || *graded.FinalScore != 30 {
		t.Fatalf("unexpected final score: %+v", graded.FinalScore)
	}
	expectKind(t, env.do(t, http.MethodPost, "/mentor/rubric/"+created.ID, m, domain.Rubric{Problem: 11}), http.StatusBadRequest, "validation")
	expectKind(t, env.do(t, http.MethodPost, "/mentor/review/"+created.ID, b, map[string]string{"status": "approved"}), http.StatusForbidden, "permission")

	rr = env.do(t, http.MethodPost, "/mentor/review/"+created.ID, m, map[string]string{"status": "rejected", "feedback": "needs more tests"})
	if rr.Code != http.StatusOK {
		t.Fatalf("decide: %d %s", rr.Code, rr.Body.String())
	}
	detail := decode[team.Detail](t, env.do(t, http.MethodGet, "/teams/"+created.ID, b, nil))
	if detail.Team.ReviewStatus != domain.StatusRejected || detail.Submission.MentorFeedback != "needs more tests" {
		t.Fatalf("unexpected detail: %+v %+v", detail.Team, detail.Submission)
	}
	expectKind(t, env.do(t, http.MethodGet, "/teams/"+created.ID, d, nil), http.StatusForbidden, "permission")
	expectKind(t, env.do(t, http.MethodGet, "/teams/missing", a, nil), http.StatusNotFound, "not_found")
}

func TestFileRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	created := env.createTeam(t, a, 2)

	rr := env.upload(t, created.ID, a, "notes.txt", "hello world")
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	record := decode[domain.FileRecord](t, rr)

	listed := decode[[]domain.FileRecord](t, env.do(t, http.MethodGet, "/team-files/"+created.ID, a, nil))
	if len(listed) != 1 || listed[0].ID != record.ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	rr = env.do(t, http.MethodGet, "/team-files/"+created.ID+"/"+record.ID, a, nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "hello world" {
		t.Fatalf("download: %d %q", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes.txt") {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	if rr := env.do(t, http.MethodDelete, "/team-files/"+created.ID+"/"+record.ID, a, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodDelete, "/team-files/"+created.ID+"/"+record.ID, a, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("repeat delete should succeed, got %d", rr.Code)
	}
	expectKind(t, env.do(t, http.MethodDelete, "/team-files/"+created.ID+"/nope", a, nil), http.StatusNotFound, "not_found")

	req := httptest.NewRequest(http.MethodPost, "/team-files/"+created.ID, strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+a)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non multipart upload, got %d", rec.Code)
	}
}

func TestChatRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	m := token(t, "m1", domain.RoleMentor)
	outsider := token(t, "z", domain.RoleStudent)
	created := env.createTeam(t, a, 2)

	for _, text := range []string{"one", "two", "three"} {
		if rr := env.do(t, http.MethodPost, "/teams/"+created.ID+"/chat", a, map[string]string{"text": text}); rr.Code != http.StatusCreated {
			t.Fatalf("send: %d %s", rr.Code, rr.Body.String())
		}
	}
	expectKind(t, env.do(t, http.MethodPost, "/teams/"+created.ID+"/chat", a, map[string]string{"text": "   "}), http.StatusBadRequest, "validation")
	expectKind(t, env.do(t, http.MethodPost, "/teams/"+created.ID+"/chat", m, map[string]string{"text": "hi"}), http.StatusForbidden, "permission")
	expectKind(t, env.do(t, http.MethodGet, "/teams/"+created.ID+"/chat", outsider, nil), http.StatusForbidden, "permission")

	all := decode[[]domain.ChatMessage](t, env.do(t, http.MethodGet, "/teams/"+created.ID+"/chat", m, nil))
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	tail := decode[[]domain.ChatMessage](t, env.do(t, http.MethodGet, "/teams/"+created.ID+"/chat?since="+strconv.FormatInt(all[0].Seq, 10), a, nil))
	if len(tail) != 2 || tail[0].Text != "two" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if rr := env.do(t, http.MethodGet, "/teams/"+created.ID+"/chat?since=abc", a, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", rr.Code)
	}
}

func TestMentorNotesAndSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	m := token(t, "m1", domain.RoleMentor)
	created := env.createTeam(t, a, 2)

	if rr := env.do(t, http.MethodPost, "/mentor/notes/"+created.ID, m, map[string]string{"notes": "promising"}); rr.Code != http.StatusOK {
		t.Fatalf("save notes: %d %s", rr.Code, rr.Body.String())
	}
	notes := decode[map[string]string](t, env.do(t, http.MethodGet, "/mentor/notes/"+created.ID, m, nil))
	if notes["notes"] != "promising" {
		t.Fatalf("unexpected notes %+v", notes)
	}
	expectKind(t, env.do(t, http.MethodGet, "/mentor/notes/"+created.ID, a, nil), http.StatusForbidden, "permission")

	at := time.Now().Add(48 * time.Hour).UTC()
	rr := env.do(t, http.MethodPost, "/mentor/sessions/"+created.ID, m, map[string]any{"scheduled_at": at, "meeting_link": "https://meet.example.com/a"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", rr.Code, rr.Body.String())
	}
	sess := decode[domain.Session](t, rr)
	if sess.Status != domain.SessionUpcoming {
		t.Fatalf("unexpected status %s", sess.Status)
	}

	rr = env.do(t, http.MethodPut, "/mentor/sessions/"+sess.ID+"/link", m, map[string]string{"meeting_link": "https://meet.example.com/b"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update link: %d %s", rr.Code, rr.Body.String())
	}
	listed := decode[[]domain.Session](t, env.do(t, http.MethodGet, "/teams/"+created.ID+"/sessions", a, nil))
	if len(listed) != 1 || listed[0].MeetingLink != "https://meet.example.com/b" {
		t.Fatalf("unexpected sessions: %+v", listed)
	}
	mine := decode[[]domain.Session](t, env.do(t, http.MethodGet, "/mentor/sessions", m, nil))
	if len(mine) != 1 {
		t.Fatalf("expected one mentor session, got %d", len(mine))
	}
	if rr := env.do(t, http.MethodDelete, "/mentor/sessions/"+sess.ID, m, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete session: %d", rr.Code)
	}
	expectKind(t, env.do(t, http.MethodDelete, "/mentor/sessions/"+sess.ID, m, nil), http.StatusNotFound, "not_found")
}

func TestRateLimitRejects(t *testing.T) {
	limiter := newRateLimiterStub()
	limiter.allowFn = func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, count: limit, windowEnd: time.Unix(1_950_000_000, 0)}
	}
	env := newTestEnv(t, limiter)
	rr := env.do(t, http.MethodGet, "/teams", token(t, "a", domain.RoleStudent), nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.calls) != 1 || limiter.calls[0].key != "write:user:a" {
		t.Fatalf("unexpected limiter calls: %+v", limiter.calls)
	}
	if !strings.Contains(rr.Body.String(), "write") {
		t.Fatalf("expected class in error body, got %s", rr.Body.String())
	}
}

func TestChatBudgetIsPerTeam(t *testing.T) {
	limiter := newRateLimiterStub()
	env := newTestEnv(t, limiter)
	a := token(t, "a", domain.RoleStudent)
	first := env.createTeam(t, a, 2)
	second := env.createTeam(t, token(t, "b", domain.RoleStudent), 2)
	env.do(t, http.MethodPost, "/teams/"+second.ID+"/join", a, nil)

	limiter.mu.Lock()
	limiter.calls = nil
	limiter.mu.Unlock()
	env.do(t, http.MethodPost, "/teams/"+first.ID+"/chat", a, map[string]string{"text": "one"})
	env.do(t, http.MethodPost, "/teams/"+second.ID+"/chat", a, map[string]string{"text": "two"})
	env.do(t, http.MethodGet, "/teams/"+first.ID+"/chat", a, nil)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	want := []rateLimitCall{
		{key: "chat:team:" + first.ID + ":user:a", limit: rateChat.limit, window: rateChat.window},
		{key: "chat:team:" + second.ID + ":user:a", limit: rateChat.limit, window: rateChat.window},
		{key: "read:user:a", limit: rateRead.limit, window: rateRead.window},
	}
	if len(limiter.calls) != len(want) {
		t.Fatalf("unexpected limiter calls: %+v", limiter.calls)
	}
	for i := range want {
		if limiter.calls[i] != want[i] {
			t.Fatalf("call %d: expected %+v, got %+v", i, want[i], limiter.calls[i])
		}
	}
}

func TestWindowCounter(t *testing.T) {
	now := time.Unix(1_900_000_000, 0)
	wc := &windowCounter{windows: make(map[string]rateDecision), now: func() time.Time { return now }}

	for i := 1; i <= 2; i++ {
		if d := wc.Allow("upload:team:t1:user:a", 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	if d := wc.Allow("upload:team:t1:user:a", 2, time.Minute); d.allowed {
		t.Fatalf("expected third upload to be rejected")
	}
	if d := wc.Allow("upload:team:t2:user:a", 2, time.Minute); !d.allowed {
		t.Fatalf("other team must keep its own budget")
	}

	now = now.Add(windowSweepEvery + time.Second)
	if d := wc.Allow("upload:team:t1:user:a", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected a fresh window, got %+v", d)
	}
	if _, ok := wc.windows["upload:team:t2:user:a"]; ok {
		t.Fatalf("expired window was not swept")
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
	env.router.dbHealth = func(context.Context) error { return errors.New("db down") }
	if rr := env.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected degraded healthz, got %d", rr.Code)
	}

	a := token(t, "a", domain.RoleStudent)
	env.do(t, http.MethodGet, "/teams/missing", a, nil)
	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"skillsync_api_http_requests_total", `skillsync_engine_errors_total{kind="not_found"} 1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestChatStreamDeliversMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	created := env.createTeam(t, a, 2)
	env.do(t, http.MethodPost, "/teams/"+created.ID+"/chat", a, map[string]string{"text": "before"})

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/teams/" + created.ID + "/chat/stream?token=" + a
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	first := readChatFrame(t, conn)
	if first.Text != "before" {
		t.Fatalf("expected backlog first, got %+v", first)
	}

	if err := conn.WriteJSON(map[string]string{"text": "live"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := readChatFrame(t, conn)
	if second.Text != "live" || second.Seq <= first.Seq {
		t.Fatalf("unexpected pushed message: %+v", second)
	}
}

func readChatFrame(t *testing.T, conn *websocket.Conn) domain.ChatMessage {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string `json:"type"`
		domain.ChatMessage
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if msg.Type != "chat.message" {
		t.Fatalf("unexpected frame type %q", msg.Type)
	}
	return msg.ChatMessage
}

func TestChatStreamRejectsOutsiders(t *testing.T) {
	env := newTestEnv(t, nil)
	created := env.createTeam(t, token(t, "a", domain.RoleStudent), 2)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/teams/" + created.ID + "/chat/stream?token=" + token(t, "z", domain.RoleStudent)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}
}

func TestNotificationStreamReceivesAppreciation(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	b := token(t, "b", domain.RoleStudent)
	created := env.createTeam(t, a, 2)
	env.do(t, http.MethodPost, "/teams/"+created.ID+"/join", b, nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/stream?token="+b, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	waitForSubscribers(t, env.hub, appreciation.UserTopic("b"))
	if rr := env.do(t, http.MethodPost, "/teams/"+created.ID+"/peer-appreciation", a, map[string]string{"to_user": "b", "message": "nice work"}); rr.Code != http.StatusCreated {
		t.Fatalf("appreciate: %d %s", rr.Code, rr.Body.String())
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if !strings.Contains(line, "nice work") {
			t.Fatalf("unexpected event %q", line)
		}
		break
	}

	received := decode[[]domain.Appreciation](t, env.do(t, http.MethodGet, "/teams/"+created.ID+"/peer-appreciation", b, nil))
	if len(received) != 1 {
		t.Fatalf("expected one appreciation, got %d", len(received))
	}
	sent := decode[[]domain.Appreciation](t, env.do(t, http.MethodGet, "/teams/"+created.ID+"/peer-appreciation", a, nil))
	if len(sent) != 0 {
		t.Fatalf("sender must not read back sent notes, got %d", len(sent))
	}
}

func TestMyAppreciationsAndStreamResume(t *testing.T) {
	env := newTestEnv(t, nil)
	a := token(t, "a", domain.RoleStudent)
	b := token(t, "b", domain.RoleStudent)
	c := token(t, "c", domain.RoleStudent)
	first := env.createTeam(t, a, 2)
	second := env.createTeam(t, c, 2)
	env.do(t, http.MethodPost, "/teams/"+first.ID+"/join", b, nil)
	env.do(t, http.MethodPost, "/teams/"+second.ID+"/join", b, nil)

	send := func(teamID, tok, msg string) domain.Appreciation {
		rr := env.do(t, http.MethodPost, "/teams/"+teamID+"/peer-appreciation", tok, map[string]string{"to_user": "b", "message": msg})
		if rr.Code != http.StatusCreated {
			t.Fatalf("appreciate: %d %s", rr.Code, rr.Body.String())
		}
		return decode[domain.Appreciation](t, rr)
	}
	seen := send(first.ID, a, "seen already")
	time.Sleep(2 * time.Millisecond)
	missed := send(second.ID, c, "sent while offline")

	mine := decode[[]domain.Appreciation](t, env.do(t, http.MethodGet, "/my-appreciations", b, nil))
	if len(mine) != 2 || mine[0].ID != missed.ID || mine[1].ID != seen.ID {
		t.Fatalf("unexpected cross-team listing: %+v", mine)
	}
	if rr := env.do(t, http.MethodGet, "/my-appreciations", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/stream?token="+b, nil)
	req.Header.Set("Last-Event-ID", seen.ID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var frame []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			if len(frame) > 0 && strings.HasPrefix(frame[0], "id: ") {
				break
			}
			frame = nil
			continue
		}
		frame = append(frame, line)
	}
	if len(frame) != 3 || frame[0] != "id: "+missed.ID || frame[1] != "event: appreciation" || !strings.Contains(frame[2], "sent while offline") {
		t.Fatalf("unexpected replayed frame %q", frame)
	}
}

func waitForSubscribers(t *testing.T, hub *ws.Hub, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber registered on %s", topic)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {}
