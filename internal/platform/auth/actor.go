package auth

import "context"

type contextKey string

const (
	ActorKey     contextKey = "actor"
	UserRolesKey contextKey = "user_roles"
	UserAgentKey contextKey = "user_agent"
)

// Actor identifies the operator behind a request.
type Actor struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

// UnknownActor is recorded when a request carries no resolvable identity.
var UnknownActor = Actor{ID: "unknown", Email: "unknown", Name: "Unknown User"}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ActorKey, a)
}

// ActorFromContext returns the request actor and whether one was set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ActorKey).(Actor)
	if !ok || a.ID == "" {
		return Actor{}, false
	}
	return a, true
}

func UserIDFromContext(ctx context.Context) string {
	a, _ := ActorFromContext(ctx)
	return a.ID
}

func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, UserRolesKey, roles)
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, UserAgentKey, ua)
}

func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(UserAgentKey).(string)
	return ua
}
