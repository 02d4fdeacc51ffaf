package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileDelete removes an upload's record and its bytes. The record goes
// first so a crash in between leaves stray bytes rather than a record
// pointing at nothing
func (a *API) FileDelete(c *gin.Context) {
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
				"error":     "File not found. It either doesn't exist or you don't own it",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to check if file exists", zap.Error(err))
		return
	}

	if !upload.IsOwner(user.ID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File not found. It either doesn't exist or you don't own it",
			"requestID": requestID,
		})
		return
	}

	if err := a.Store.Delete(c.Request.Context(), upload.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete file record", zap.Uint("id", upload.ID), zap.Error(err))
		return
	}

	path, err := a.Paths.FilePath(upload.UserID, upload.Name, upload.Ext)
	if err == nil {
		err = os.Remove(path)
	}

	if err != nil && !os.IsNotExist(err) {
		// The record is already gone, losing the bytes to a later
		// cleanup sweep beats resurrecting the record
		zap.L().Error("Failed to delete stored file", zap.Uint("id", upload.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": upload.ID,
	})
}
