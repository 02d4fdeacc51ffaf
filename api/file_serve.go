package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"hostbin/file-api/internal/service"
	"hostbin/file-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileServe serves a stored file's bytes. Public files are served to
// anyone, private ones only to their owner. Supports conditional
// requests and a ?d=1 forced download
func (a *API) FileServe(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	fileID, err := strconv.ParseUint(c.Param("fileID"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid file ID",
			"requestID": requestID,
		})
		return
	}

	var requester *service.Requester
	if user := middleware.RequesterFrom(c); user != nil {
		requester = &service.Requester{ID: user.ID}
	}

	download, err := strconv.ParseBool(c.DefaultQuery("d", "0"))
	if err != nil {
		download = false
	}

	delivery, err := a.Files.Resolve(c.Request.Context(), uint(fileID), requester, service.ResolveOptions{
		ForceDownload:   download,
		IfNoneMatch:     c.GetHeader("If-None-Match"),
		IfModifiedSince: c.GetHeader("If-Modified-Since"),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
		case errors.Is(err, service.ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "You do not have permission to access this file",
				"requestID": requestID,
			})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to resolve file", zap.Uint64("id", fileID), zap.Error(err))
		}
		return
	}

	c.Header("Content-Type", delivery.ContentType)
	c.Header("Content-Disposition", delivery.Disposition)
	c.Header("Cache-Control", delivery.CacheControl)
	c.Header("ETag", delivery.ETag)
	c.Header("Last-Modified", delivery.LastModified.Format(http.TimeFormat))

	if delivery.NotModified {
		c.Status(http.StatusNotModified)
		return
	}

	f, err := os.Open(delivery.Path)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to open stored file", zap.String("path", delivery.Path), zap.Error(err))
		return
	}
	defer f.Close()

	// ServeContent adds range support on top of the headers set above
	http.ServeContent(c.Writer, c.Request, "", delivery.LastModified, f)
}
