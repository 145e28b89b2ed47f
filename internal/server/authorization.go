package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFromContext(c)
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, strings.TrimSpace(object), strings.TrimSpace(action)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
