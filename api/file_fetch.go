package api

import (
	"errors"
	"net/http"
	"strconv"

	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileFetch returns a file's metadata to its owner
func (a *API) FileFetch(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	user := middleware.RequesterFrom(c)

	fileID, err := strconv.ParseUint(c.Param("fileID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid file ID",
			"requestID": requestID,
		})
		return
	}

	upload, err := a.Store.Get(c.Request.Context(), uint(fileID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file from db", zap.Error(err))
		return
	}

	// Not owning a file looks the same as it not existing
	if !upload.IsOwner(user.ID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, upload)
}
