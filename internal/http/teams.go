package httpx

import (
	"net/http"
	"strconv"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/service/team"
)

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload team.CreateInput
		if !decodeJSON(w, req, &payload) {
			return
		}
		created, err := r.svc.Team.Create(req.Context(), actor, payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		var (
			teams []domain.Team
			err   error
		)
		switch scope := req.URL.Query().Get("scope"); scope {
		case "", "mine":
			teams, err = r.svc.Team.ListMine(req.Context(), actor)
		case "joinable":
			teams, err = r.svc.Team.ListJoinable(req.Context(), actor)
		default:
			writeError(w, http.StatusBadRequest, "scope must be mine or joinable")
			return
		}
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, teams)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	parts := pathParts(req.URL.Path, "/teams/")
	if len(parts) == 0 {
		r.notFound(w)
		return
	}
	teamID := parts[0]
	route := "/teams/{id}"
	if len(parts) > 1 {
		route += "/" + parts[1]
	}

	switch {
	case len(parts) == 1:
		r.serveLimited(route, rateRead, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleTeamDetail(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "join":
		r.serveLimited(route, rateWrite, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleTeamJoin(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "submit":
		r.serveLimited(route, rateWrite, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleTeamSubmit(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "project":
		r.serveLimited(route, rateWrite, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleProjectMeta(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "submissions":
		r.serveLimited(route, rateRead, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleSubmissions(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "sessions":
		r.serveLimited(route, rateRead, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleTeamSessions(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "chat":
		class := rateRead
		if req.Method == http.MethodPost {
			class = rateChat
		}
		r.serveLimited(route, class, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleChat(w, req, teamID)
		})
	case len(parts) == 3 && parts[1] == "chat" && parts[2] == "stream":
		r.serveLimited(route+"/stream", rateStream, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleChatStream(w, req, teamID)
		})
	case len(parts) == 2 && parts[1] == "peer-appreciation":
		r.serveLimited(route, rateWrite, teamID, w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleAppreciation(w, req, teamID)
		})
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTeamDetail(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	detail, err := r.svc.Team.Detail(req.Context(), actor, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleTeamJoin(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	joined, err := r.svc.Team.Join(req.Context(), actor, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (r *Router) handleTeamSubmit(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	sub, err := r.svc.Workflow.Submit(req.Context(), actor, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (r *Router) handleProjectMeta(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	var meta domain.ProjectMeta
	if !decodeJSON(w, req, &meta) {
		return
	}
	updated, err := r.svc.Team.UpdateProjectMeta(req.Context(), actor, teamID, meta)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleSubmissions(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	subs, err := r.svc.Review.Submissions(req.Context(), actor, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (r *Router) handleTeamSessions(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	sessions, err := r.svc.Sessions.ListForTeam(req.Context(), actor, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (r *Router) handleChat(w http.ResponseWriter, req *http.Request, teamID string) {
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		query := req.URL.Query()
		since, err := parseInt64(query.Get("since"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an integer")
			return
		}
		limit, err := parseInt64(query.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		msgs, err := r.svc.Chat.Fetch(req.Context(), actor, teamID, since, int(limit))
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	case http.MethodPost:
		var payload struct {
			Text string `json:"text"`
		}
		if !decodeJSON(w, req, &payload) {
			return
		}
		msg, err := r.svc.Chat.Send(req.Context(), actor, teamID, payload.Text)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleAppreciation(w http.ResponseWriter, req *http.Request, teamID string) {
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		notes, err := r.svc.Appreciation.ListReceived(req.Context(), actor, teamID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, notes)
	case http.MethodPost:
		var payload struct {
			ToUser  string `json:"to_user"`
			Message string `json:"message"`
		}
		if !decodeJSON(w, req, &payload) {
			return
		}
		note, err := r.svc.Appreciation.Send(req.Context(), actor, teamID, payload.ToUser, payload.Message)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)
	default:
		r.methodNotAllowed(w)
	}
}

// handleMyAppreciations lists notes addressed to the caller in every team.
func (r *Router) handleMyAppreciations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	notes, err := r.svc.Appreciation.ListAllReceived(req.Context(), actor)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
