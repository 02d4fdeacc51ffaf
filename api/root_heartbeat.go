package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Heartbeat lets load balancers and uptime monitors check if the
// server is alive
func (a *API) Heartbeat(c *gin.Context) {
	c.Status(http.StatusOK)
}
