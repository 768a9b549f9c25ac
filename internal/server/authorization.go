package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obsmiddleware "github.com/smallbiznis/vetbill/internal/observability/logger"
)

// requirePermission gates a route on the role forwarded by the gateway.
func (s *Server) requirePermission(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.TrimSpace(c.GetHeader(obsmiddleware.HeaderStaffRole))
		if role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
