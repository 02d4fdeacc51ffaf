package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Stats returns aggregate numbers over public uploads. Responses are
// cached for a short while since this gets hammered by landing pages
func (a *API) Stats(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	stats, err := a.Store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to aggregate stats", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, stats)
}
