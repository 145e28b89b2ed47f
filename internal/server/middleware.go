package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/casebill/internal/authorization"
	obscontext "github.com/smallbiznis/casebill/internal/observability/context"
)

// HeaderActor carries the caller identity set by the upstream gateway:
// "system" or "user:<worker id>".
const (
	HeaderActor     = "X-Casebill-Actor"
	contextActorKey = "actor"
)

// ActorRequired rejects requests without a well-formed actor and stores it
// on the gin context for handlers and audit logs.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActor))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actor, err := authorization.ParseActor(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		actorID := actor.ID.String()
		if actor.Type == authorization.SystemActor {
			actorID = authorization.SystemActor
		}
		c.Set(contextActorKey, raw)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actor.Type, actorID))
		c.Next()
	}
}

func actorFromContext(c *gin.Context) string {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return ""
	}
	actor, _ := value.(string)
	return actor
}
