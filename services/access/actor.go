package access

import (
	"context"

	"reviewcamp/pkg/errutil"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleClient   Role = "client"
	RoleReviewer Role = "reviewer"
	// RoleSystem is used by the deadline scanner and payment callbacks.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleReviewer, RoleSystem:
		return true
	}
	return false
}

// Actor is the authenticated caller. Identity is established upstream.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

var System = Actor{ID: "system", Role: RoleSystem}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Owns reports whether the actor may act on a resource owned by ownerID.
func (a Actor) Owns(ownerID string) bool {
	return a.IsAdmin() || (a.ID != "" && a.ID == ownerID)
}

// RequireOwner returns Forbidden unless the actor owns the resource.
func (a Actor) RequireOwner(ownerID, resource string) error {
	if a.Owns(ownerID) {
		return nil
	}
	return errutil.Forbidden(resource+" belongs to another user", nil)
}

// RequireAdmin returns Forbidden unless the actor is an operator.
func (a Actor) RequireAdmin() error {
	if a.IsAdmin() {
		return nil
	}
	return errutil.Forbidden("operator role required", nil)
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
