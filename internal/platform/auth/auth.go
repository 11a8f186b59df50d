package auth

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserNameKey  contextKey = "user_name"
	UserRolesKey contextKey = "user_roles"
)

// Clinic staff roles understood by the workflow engine.
const (
	RoleAdmin    = "admin"
	RoleClinic   = "clinic"
	RoleAssigner = "assigner"
	RoleDoctor   = "doctor"
	RoleJrDoctor = "jrdoctor"
)

// Actor identifies who is performing an operation. Services trust the role
// carried here; authentication happened at the middleware boundary.
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the actor carries the given role. Admin implies
// every role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor carries at least one of the roles.
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// WithActor stores the actor's identity in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, actor.ID)
	ctx = context.WithValue(ctx, UserNameKey, actor.Name)
	return context.WithValue(ctx, UserRolesKey, actor.Roles)
}

// ActorFromContext retrieves the acting user from the context. A zero Actor
// is returned for unauthenticated contexts.
func ActorFromContext(ctx context.Context) Actor {
	id, _ := ctx.Value(UserIDKey).(string)
	name, _ := ctx.Value(UserNameKey).(string)
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return Actor{ID: id, Name: name, Roles: roles}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
