package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splax/skillsync/internal/domain"
)

// Client provides typed access to the skillsync API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL returns the normalised API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if e.Kind != "" {
		return fmt.Sprintf("api request failed (%d %s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Is lets callers match API failures against the domain error kinds.
func (e APIError) Is(target error) bool {
	switch e.Kind {
	case "validation":
		return target == domain.ErrValidation
	case "permission":
		return target == domain.ErrPermission
	case "state":
		return target == domain.ErrState
	case "capacity":
		return target == domain.ErrCapacity
	case "not_found":
		return target == domain.ErrNotFound
	case "conflict":
		return target == domain.ErrConflict
	case "transport":
		return target == domain.ErrTransport
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	resp, err := c.send(ctx, method, path, reader, contentType, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs the request and converts error statuses into APIError. The
// caller closes the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType, token string) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		kind, msg := extractError(resp.Body)
		return nil, APIError{Status: resp.StatusCode, Kind: kind, Message: msg}
	}
	return resp, nil
}

func extractError(body io.Reader) (string, string) {
	if body == nil {
		return "", ""
	}
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "", ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", strings.TrimSpace(string(data))
	}
	return payload.Kind, strings.TrimSpace(payload.Error)
}

// TeamDetail mirrors GET /teams/{id}.
type TeamDetail struct {
	Team       domain.Team        `json:"team"`
	Submission *domain.Submission `json:"submission,omitempty"`
}

// CreateTeamInput captures the payload for team creation.
type CreateTeamInput struct {
	Name           string   `json:"name"`
	Capacity       int      `json:"capacity"`
	RequiredSkills []string `json:"required_skills"`
	MentorID       string   `json:"mentor_id"`
}

// ListTeams returns the caller's teams, or joinable teams when joinable is set.
func (c *Client) ListTeams(ctx context.Context, token string, joinable bool) ([]domain.Team, error) {
	path := "/teams?scope=mine"
	if joinable {
		path = "/teams?scope=joinable"
	}
	var teams []domain.Team
	if err := c.do(ctx, http.MethodGet, path, nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// CreateTeam registers a new team with the caller as creator.
func (c *Client) CreateTeam(ctx context.Context, token string, input CreateTeamInput) (domain.Team, error) {
	var team domain.Team
	if err := c.do(ctx, http.MethodPost, "/teams", input, token, &team); err != nil {
		return domain.Team{}, err
	}
	return team, nil
}

// GetTeam fetches a team with its latest submission.
func (c *Client) GetTeam(ctx context.Context, token, teamID string) (TeamDetail, error) {
	var detail TeamDetail
	if err := c.do(ctx, http.MethodGet, "/teams/"+url.PathEscape(teamID), nil, token, &detail); err != nil {
		return TeamDetail{}, err
	}
	return detail, nil
}

// JoinTeam adds the caller to a team.
func (c *Client) JoinTeam(ctx context.Context, token, teamID string) (domain.Team, error) {
	var team domain.Team
	if err := c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/join", nil, token, &team); err != nil {
		return domain.Team{}, err
	}
	return team, nil
}

// SubmitTeam sends the team's current files for review.
func (c *Client) SubmitTeam(ctx context.Context, token, teamID string) (domain.Submission, error) {
	var sub domain.Submission
	if err := c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/submit", nil, token, &sub); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// FetchChat returns messages after the since cursor.
func (c *Client) FetchChat(ctx context.Context, token, teamID string, since int64) ([]domain.ChatMessage, error) {
	path := fmt.Sprintf("/teams/%s/chat?since=%d", url.PathEscape(teamID), since)
	var msgs []domain.ChatMessage
	if err := c.do(ctx, http.MethodGet, path, nil, token, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendChat posts a message to the team chat.
func (c *Client) SendChat(ctx context.Context, token, teamID, text string) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/chat", body, token, &msg); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// ListFiles returns the team's live files.
func (c *Client) ListFiles(ctx context.Context, token, teamID string) ([]domain.FileRecord, error) {
	var records []domain.FileRecord
	if err := c.do(ctx, http.MethodGet, "/team-files/"+url.PathEscape(teamID), nil, token, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UploadFile streams body as a multipart upload.
func (c *Client) UploadFile(ctx context.Context, token, teamID, filename string, body io.Reader) (domain.FileRecord, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, body)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	resp, err := c.send(ctx, http.MethodPost, "/team-files/"+url.PathEscape(teamID), pr, mw.FormDataContentType(), token)
	_ = pr.Close()
	if err != nil {
		return domain.FileRecord{}, err
	}
	defer resp.Body.Close()
	var record domain.FileRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return domain.FileRecord{}, fmt.Errorf("decode response: %w", err)
	}
	return record, nil
}

// DownloadFile copies a file's content into w.
func (c *Client) DownloadFile(ctx context.Context, token, teamID, fileID string, w io.Writer) (int64, error) {
	path := "/team-files/" + url.PathEscape(teamID) + "/" + url.PathEscape(fileID)
	resp, err := c.send(ctx, http.MethodGet, path, nil, "", token)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// DeleteFile removes a file. A file that is already gone counts as deleted.
func (c *Client) DeleteFile(ctx context.Context, token, teamID, fileID string) error {
	path := "/team-files/" + url.PathEscape(teamID) + "/" + url.PathEscape(fileID)
	return c.do(ctx, http.MethodDelete, path, nil, token, nil)
}

// PostRubric grades the team's current submission.
func (c *Client) PostRubric(ctx context.Context, token, teamID string, rubric domain.Rubric) (domain.Submission, error) {
	var sub domain.Submission
	if err := c.do(ctx, http.MethodPost, "/mentor/rubric/"+url.PathEscape(teamID), rubric, token, &sub); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// Decide approves or rejects the team's submission.
func (c *Client) Decide(ctx context.Context, token, teamID string, outcome domain.ReviewStatus, feedback string) (domain.Submission, error) {
	body := map[string]string{"status": string(outcome), "feedback": feedback}
	var sub domain.Submission
	if err := c.do(ctx, http.MethodPost, "/mentor/review/"+url.PathEscape(teamID), body, token, &sub); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// PendingReviews lists the mentor's submitted teams.
func (c *Client) PendingReviews(ctx context.Context, token string) ([]domain.Team, error) {
	var teams []domain.Team
	if err := c.do(ctx, http.MethodGet, "/mentor/reviews", nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Appreciate sends a private note to a teammate.
func (c *Client) Appreciate(ctx context.Context, token, teamID, toUser, message string) (domain.Appreciation, error) {
	body := map[string]string{"to_user": toUser, "message": message}
	var note domain.Appreciation
	if err := c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/peer-appreciation", body, token, &note); err != nil {
		return domain.Appreciation{}, err
	}
	return note, nil
}

// MyAppreciations lists notes addressed to the caller across teams, newest first.
func (c *Client) MyAppreciations(ctx context.Context, token string) ([]domain.Appreciation, error) {
	var notes []domain.Appreciation
	if err := c.do(ctx, http.MethodGet, "/my-appreciations", nil, token, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// ListSessions returns the team's mentor sessions.
func (c *Client) ListSessions(ctx context.Context, token, teamID string) ([]domain.Session, error) {
	var sessions []domain.Session
	if err := c.do(ctx, http.MethodGet, "/teams/"+url.PathEscape(teamID)+"/sessions", nil, token, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
