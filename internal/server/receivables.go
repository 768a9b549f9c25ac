package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetReceivables(c *gin.Context) {
	asOf, err := parseOptionalTime(c.Query("as_of"), true)
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "invalid as_of"))
		return
	}

	now := s.clock.Now()
	if asOf != nil {
		now = *asOf
	}

	report, err := s.receivablesSvc.Compute(c.Request.Context(), now)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
