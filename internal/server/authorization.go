package server

import (
	"github.com/gin-gonic/gin"
)

// authorizeAction guards read endpoints. Mutations authorize inside their
// services so that every caller, not just HTTP, is checked.
func (s *Server) authorizeAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if _, err := s.authzSvc.Authorize(c.Request.Context(), action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
