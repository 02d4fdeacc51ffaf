package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"hostbin/file-api/internal/model"
	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/storage"

	"go.uber.org/zap"
)

var (
	// ErrNotFound covers both unknown ids and records whose bytes are
	// gone from disk, callers can't tell the two apart
	ErrNotFound = errors.New("file not found")

	ErrForbidden = errors.New("not allowed to access this file")
)

// Types that are safe to render inline in a browser. Everything else,
// including actively risky things like HTML, defaults to attachment
var inlineTypes = []string{
	"image/*",
	"video/*",
	"audio/*",
	"application/pdf",
	"text/plain",
}

// Requester identifies who is asking for a file. A nil *Requester
// means an anonymous request
type Requester struct {
	ID uint
}

// ResolveOptions carries the caller's delivery preferences and the
// conditional request headers, verbatim
type ResolveOptions struct {
	ForceDownload   bool
	IfNoneMatch     string
	IfModifiedSince string
}

// Delivery describes how to send a stored file back to a client
type Delivery struct {
	Upload *model.Upload

	// Absolute path of the bytes on disk
	Path string
	Size int64

	ContentType  string
	Disposition  string
	CacheControl string
	ETag         string
	LastModified time.Time

	// Set when the client's cache validators still match and no bytes
	// need to be transferred
	NotModified bool
}

// Files serves stored uploads with access control, header negotiation
// and view counting
type Files struct {
	Store store.Uploads
	Paths *storage.Paths
}

func NewFiles(s store.Uploads, p *storage.Paths) *Files {
	return &Files{
		Store: s,
		Paths: p,
	}
}

// Resolve looks up an upload and decides whether and how to deliver
// it. The view counter moves only for successful non-owner deliveries
// that actually transfer bytes, never on an error path
func (f *Files) Resolve(ctx context.Context, id uint, requester *Requester, opts ResolveOptions) (*Delivery, error) {
	upload, err := f.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	isOwner := requester != nil && upload.IsOwner(requester.ID)

	if upload.Private && !isOwner {
		return nil, ErrForbidden
	}

	path, err := f.Paths.FilePath(upload.UserID, upload.Name, upload.Ext)
	if err != nil {
		zap.L().Error("Stored file resolves outside the storage root", zap.Uint("id", id), zap.Error(err))
		return nil, ErrNotFound
	}

	info, err := os.Stat(path)
	if err != nil {
		// A dangling record without bytes serves as a plain 404, the
		// mismatch is only interesting in the logs
		if !os.IsNotExist(err) {
			zap.L().Error("Failed to stat stored file", zap.String("path", path), zap.Error(err))
		} else {
			zap.L().Warn("Upload record has no backing file", zap.Uint("id", id), zap.String("path", path))
		}

		return nil, ErrNotFound
	}

	modTime := info.ModTime().UTC().Truncate(time.Second)
	etag := fmt.Sprintf("\"%x-%x\"", info.ModTime().Unix(), info.Size())

	d := &Delivery{
		Upload:       upload,
		Path:         path,
		Size:         info.Size(),
		ContentType:  upload.Type,
		Disposition:  disposition(upload, opts.ForceDownload),
		CacheControl: cacheControl(upload),
		ETag:         etag,
		LastModified: modTime,
		NotModified:  notModified(opts, etag, modTime),
	}

	if d.NotModified || isOwner {
		return d, nil
	}

	if err := f.Store.IncrementViews(ctx, id); err != nil {
		// Delivery still goes ahead, a lost view is not worth a 500
		zap.L().Error("Failed to increment view counter", zap.Uint("id", id), zap.Error(err))
	} else {
		upload.Viewed++
	}

	return d, nil
}

func disposition(upload *model.Upload, forceDownload bool) string {
	filename := storage.SanitizeFilename(upload.DisplayFilename())

	if !forceDownload && mimeMatches(inlineTypes, upload.Type) {
		return fmt.Sprintf("inline; filename=%q", filename)
	}

	return fmt.Sprintf("attachment; filename=%q", filename)
}

func cacheControl(upload *model.Upload) string {
	if upload.Private {
		return "private, max-age=3600"
	}

	return "public, max-age=3600"
}

// notModified checks the client's cache validators. If-None-Match wins
// over If-Modified-Since, matching standard HTTP precedence
func notModified(opts ResolveOptions, etag string, modTime time.Time) bool {
	if opts.IfNoneMatch != "" {
		for _, candidate := range strings.Split(opts.IfNoneMatch, ",") {
			candidate = strings.TrimSpace(candidate)
			candidate = strings.TrimPrefix(candidate, "W/")

			if candidate == "*" || candidate == etag {
				return true
			}
		}

		return false
	}

	if opts.IfModifiedSince != "" {
		since, err := http.ParseTime(opts.IfModifiedSince)
		if err == nil && !modTime.After(since) {
			return true
		}
	}

	return false
}

func mimeMatches(patterns []string, mimeType string) bool {
	mimeType = normalizeMime(mimeType)

	for _, p := range patterns {
		if strings.HasSuffix(p, "/*") {
			if strings.HasPrefix(mimeType, p[:len(p)-1]) {
				return true
			}
		} else if p == mimeType {
			return true
		}
	}

	return false
}
