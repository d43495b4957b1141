package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/pkg/jwt"
)

type authContextKey string

const contextKeyAuth authContextKey = "skillsync-actor"

type contextSetter interface {
	SetContext(context.Context)
}

// Authorizer turns a bearer token into the calling actor.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (domain.Actor, error)
}

// JWTAuthorizer verifies HS256 tokens issued by the identity provider.
type JWTAuthorizer struct {
	Secret string
}

// Authorize validates the token and maps its claims onto an Actor.
func (a JWTAuthorizer) Authorize(_ context.Context, token string) (domain.Actor, error) {
	claims, err := jwt.Parse(token, a.Secret)
	if err != nil {
		return domain.Actor{}, err
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if role != domain.RoleStudent && role != domain.RoleMentor {
		return domain.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return domain.Actor{UserID: claims.UserID, Name: claims.Name, Role: role}, nil
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the bearer token and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, domain.Actor, bool) {
	token, err := requestToken(req)
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), domain.Actor{}, false
	}
	actor, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), domain.Actor{}, false
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, actor)
	return ctx, actor, true
}

// actorFromContext extracts the caller from context.
func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(contextKeyAuth).(domain.Actor)
	return actor, ok
}

// requestToken reads the Authorization header. Stream endpoints may pass
// the token as a query parameter because browsers cannot set headers on
// websocket or EventSource requests.
func requestToken(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	if strings.TrimSpace(header) == "" && strings.HasSuffix(req.URL.Path, "/stream") {
		if token := strings.TrimSpace(req.URL.Query().Get("token")); token != "" {
			return token, nil
		}
	}
	return bearerToken(header)
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
