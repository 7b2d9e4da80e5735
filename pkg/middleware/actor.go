package middleware

import (
	"reviewcamp/pkg/errutil"
	"reviewcamp/services/access"

	"github.com/gin-gonic/gin"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "reviewcamp.actor"

// Actor reads the caller identity set by the upstream gateway. Requests
// without a valid identity are rejected.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		a := access.Actor{
			ID:   c.GetHeader(HeaderActorID),
			Role: access.Role(c.GetHeader(HeaderActorRole)),
		}
		if a.ID == "" || !a.Role.Valid() || a.Role == access.RoleSystem {
			_ = c.Error(errutil.Unauthorized("missing or unknown actor", nil))
			c.Abort()
			return
		}
		c.Set(actorKey, a)
		c.Request = c.Request.WithContext(access.WithActor(c.Request.Context(), a))
		c.Next()
	}
}

// ActorFrom returns the caller stored by Actor.
func ActorFrom(c *gin.Context) access.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(access.Actor); ok {
			return a
		}
	}
	a, _ := access.FromContext(c.Request.Context())
	return a
}
