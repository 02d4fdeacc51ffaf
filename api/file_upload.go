package api

import (
	"io"
	"net/http"

	"hostbin/file-api/internal/service"
	"hostbin/file-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errReader turns a failed multipart open into a per-file pipeline
// failure instead of aborting the whole batch
type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// FileUpload ingests a batch of files from a multipart form. Every
// file gets its own result entry, mixed success and failure still
// returns 200
func (a *API) FileUpload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	user := middleware.RequesterFrom(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed multipart form",
			"requestID": requestID,
		})

		zap.L().Error("Failed to read multipart form", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	fhs := form.File["files"]
	if len(fhs) == 0 {
		fhs = form.File["file"]
	}

	if len(fhs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No files provided",
			"requestID": requestID,
		})
		return
	}

	inputs := make([]service.UploadInput, 0, len(fhs))
	var open []io.Closer

	for _, fh := range fhs {
		in := service.UploadInput{
			Filename:     fh.Filename,
			MimeHint:     fh.Header.Get("Content-Type"),
			DeclaredSize: fh.Size,
		}

		f, err := fh.Open()
		if err != nil {
			zap.L().Error("Failed to open multipart file", zap.String("requestID", requestID), zap.Error(err))
			in.Reader = errReader{err: err}
		} else {
			in.Reader = f
			open = append(open, f)
		}

		inputs = append(inputs, in)
	}

	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()

	outcomes := a.Pipeline.Ingest(c.Request.Context(), user, inputs)

	c.JSON(http.StatusOK, gin.H{
		"results": outcomes,
	})
}
