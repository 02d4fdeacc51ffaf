package api

import (
	"errors"
	"net/http"
	"strconv"

	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/middleware"
	"hostbin/file-api/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fileEditOpts struct {
	NewName *string `json:"name,omitempty"`
	Private *bool   `json:"private,omitempty"`
}

// FileEdit updates an upload's display name or visibility. Only the
// owner can edit, and only these two fields are mutable
func (a *API) FileEdit(c *gin.Context) {
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

	var data fileEditOpts
	if err := c.BindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	if data.NewName == nil && data.Private == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No edit options provided",
			"requestID": requestID,
		})
		return
	}

	if data.NewName != nil && *data.NewName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Empty name",
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

	if !upload.IsOwner(user.ID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	fields := map[string]any{}

	if data.NewName != nil {
		// The display name follows the same character rules as
		// generated names so it stays header and URL safe
		fields["clean_name"] = storage.CleanFilename(*data.NewName)
	}

	if data.Private != nil {
		fields["private"] = *data.Private
	}

	if err := a.Store.Update(c.Request.Context(), upload.ID, fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update file", zap.Uint("id", upload.ID), zap.Error(err))
		return
	}

	updated, err := a.Store.Get(c.Request.Context(), upload.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file after edit", zap.Uint("id", upload.ID), zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, updated)
}
