package httpx

import (
	"net/http"
	"time"

	"github.com/splax/skillsync/internal/domain"
)

// handleMentor serves the /mentor/ tree: review decisions, rubric, notes,
// the pending queue and session scheduling.
func (r *Router) handleMentor(w http.ResponseWriter, req *http.Request) {
	parts := pathParts(req.URL.Path, "/mentor/")
	if len(parts) == 0 {
		r.notFound(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	switch {
	case len(parts) == 1 && parts[0] == "reviews":
		r.handlePendingReviews(w, req, actor)
	case len(parts) == 2 && parts[0] == "review":
		r.handleDecision(w, req, actor, parts[1])
	case len(parts) == 2 && parts[0] == "rubric":
		r.handleRubric(w, req, actor, parts[1])
	case len(parts) == 2 && parts[0] == "notes":
		r.handleNotes(w, req, actor, parts[1])
	case parts[0] == "sessions":
		r.handleMentorSessions(w, req, actor, parts[1:])
	default:
		r.notFound(w)
	}
}

func (r *Router) handlePendingReviews(w http.ResponseWriter, req *http.Request, actor domain.Actor) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	teams, err := r.svc.Review.Pending(req.Context(), actor)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) handleDecision(w http.ResponseWriter, req *http.Request, actor domain.Actor, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Status   domain.ReviewStatus `json:"status"`
		Feedback string              `json:"feedback"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	sub, err := r.svc.Review.PostDecision(req.Context(), actor, teamID, payload.Status, payload.Feedback)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (r *Router) handleRubric(w http.ResponseWriter, req *http.Request, actor domain.Actor, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var rubric domain.Rubric
	if !decodeJSON(w, req, &rubric) {
		return
	}
	sub, err := r.svc.Review.PostRubric(req.Context(), actor, teamID, rubric)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (r *Router) handleNotes(w http.ResponseWriter, req *http.Request, actor domain.Actor, teamID string) {
	switch req.Method {
	case http.MethodGet:
		notes, err := r.svc.Review.Notes(req.Context(), actor, teamID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"notes": notes})
	case http.MethodPost, http.MethodPut:
		var payload struct {
			Notes string `json:"notes"`
		}
		if !decodeJSON(w, req, &payload) {
			return
		}
		if err := r.svc.Review.SaveNotes(req.Context(), actor, teamID, payload.Notes); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	default:
		r.methodNotAllowed(w)
	}
}

// handleMentorSessions routes GET /mentor/sessions, POST /mentor/sessions/{team_id},
// PUT /mentor/sessions/{id}/link and DELETE /mentor/sessions/{id}.
func (r *Router) handleMentorSessions(w http.ResponseWriter, req *http.Request, actor domain.Actor, rest []string) {
	switch {
	case len(rest) == 0 && req.Method == http.MethodGet:
		sessions, err := r.svc.Sessions.ListForMentor(req.Context(), actor)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	case len(rest) == 1 && req.Method == http.MethodPost:
		var payload struct {
			ScheduledAt time.Time `json:"scheduled_at"`
			MeetingLink string    `json:"meeting_link"`
		}
		if !decodeJSON(w, req, &payload) {
			return
		}
		sess, err := r.svc.Sessions.Schedule(req.Context(), actor, rest[0], payload.ScheduledAt, payload.MeetingLink)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	case len(rest) == 1 && req.Method == http.MethodDelete:
		if err := r.svc.Sessions.Delete(req.Context(), actor, rest[0]); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(rest) == 2 && rest[1] == "link" && req.Method == http.MethodPut:
		var payload struct {
			MeetingLink string `json:"meeting_link"`
		}
		if !decodeJSON(w, req, &payload) {
			return
		}
		sess, err := r.svc.Sessions.UpdateLink(req.Context(), actor, rest[0], payload.MeetingLink)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case len(rest) <= 2:
		r.methodNotAllowed(w)
	default:
		r.notFound(w)
	}
}
