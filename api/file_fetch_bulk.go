package api

import (
	"net/http"
	"strconv"

	"hostbin/file-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPageSize = 100

// FileFetchBulk returns a page of the requester's files, newest first
func (a *API) FileFetchBulk(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	user := middleware.RequesterFrom(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > maxPageSize {
		limit = 50
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	uploads, total, err := a.Store.ListForOwner(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list files", zap.Uint("userID", user.ID), zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files":  uploads,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
