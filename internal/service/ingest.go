// Package service holds the upload pipeline, image inspection and file
// serving logic behind the HTTP layer
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"hostbin/file-api/internal/model"
	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/quota"
	"hostbin/file-api/pkg/storage"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Error kinds reported in outcomes for failures that aren't quota
// related. Quota failures carry their own kind
const (
	errKindStorage     = "storage_write_failed"
	errKindPersistence = "persistence_failed"
	errKindCancelled   = "cancelled"
	errKindInternal    = "internal_error"
)

// UploadInput is one file of a batch. MimeHint and DeclaredSize come
// from the client and are never trusted for enforcement, the pipeline
// measures the actual bytes and sniffs the actual content type
type UploadInput struct {
	Filename     string
	MimeHint     string
	DeclaredSize int64
	Reader       io.Reader
}

// Outcome is the per-file result of a batch ingestion, in input order.
// It serializes directly to the shape upload clients expect
type Outcome struct {
	Success      bool   `json:"success"`
	UploadID     uint   `json:"upload_id,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
}

// Pipeline ingests batches of uploaded files. Each file runs
// independently through validate -> store bytes -> persist metadata,
// and a failure in one file never touches its siblings
type Pipeline struct {
	Store store.Uploads
	Paths *storage.Paths
	Tiers quota.Tiers
}

func NewPipeline(s store.Uploads, p *storage.Paths, t quota.Tiers) *Pipeline {
	return &Pipeline{
		Store: s,
		Paths: p,
		Tiers: t,
	}
}

// Ingest processes the batch strictly in order and returns one outcome
// per input. Files are processed sequentially for now, but each file is
// a self-contained unit of work so fanning out to workers later only
// changes this loop
func (p *Pipeline) Ingest(ctx context.Context, owner *model.User, files []UploadInput) []Outcome {
	outcomes := make([]Outcome, 0, len(files))

	for i := range files {
		outcomes = append(outcomes, p.ingestOne(ctx, owner, &files[i]))
	}

	return outcomes
}

func failure(filename string, size int64, kind, msg string) Outcome {
	return Outcome{
		ErrorKind:    kind,
		ErrorMessage: msg,
		Filename:     filename,
		Size:         size,
	}
}

func (p *Pipeline) ingestOne(ctx context.Context, owner *model.User, in *UploadInput) Outcome {
	limits := p.Tiers.For(owner.Registered)

	// Cheap pre-check on the declared size before reading a single
	// byte. The real check runs again once the actual size is known
	if in.DeclaredSize > 0 && limits.MaxFileSize != -1 && in.DeclaredSize > limits.MaxFileSize {
		return failure(in.Filename, in.DeclaredSize, string(quota.FileTooLarge),
			fmt.Sprintf("file exceeds the maximum allowed size of %d bytes", limits.MaxFileSize))
	}

	// Spool to a temp file so we can measure and sniff the content
	// regardless of what the client declared
	temp, err := os.CreateTemp("", "ingest-*")
	if err != nil {
		zap.L().Error("Failed to create temporary file", zap.Error(err))
		return failure(in.Filename, 0, errKindInternal, "internal error")
	}
	defer temp.Close()
	defer os.Remove(temp.Name())

	size, err := io.Copy(temp, in.Reader)
	if err != nil {
		zap.L().Error("Failed to spool upload", zap.String("filename", in.Filename), zap.Error(err))
		return failure(in.Filename, size, errKindStorage, "failed to read uploaded file")
	}

	// Content based detection. The client supplied hint is easy to
	// spoof so it's never used for enforcement
	var mime string
	if size > 0 {
		mtype, err := mimetype.DetectFile(temp.Name())
		if err != nil {
			zap.L().Error("Failed to detect content type", zap.String("filename", in.Filename), zap.Error(err))
			return failure(in.Filename, size, errKindInternal, "failed to detect file type")
		}
		mime = normalizeMime(mtype.String())
	}

	count, err := p.Store.CountForOwner(ctx, owner.ID)
	if err != nil {
		zap.L().Error("Failed to count owner uploads", zap.Uint("ownerID", owner.ID), zap.Error(err))
		return failure(in.Filename, size, errKindInternal, "internal error")
	}

	if err := quota.Check(limits, size, mime, count); err != nil {
		var qe *quota.Error
		if errors.As(err, &qe) {
			return failure(in.Filename, size, string(qe.Kind), qe.Message)
		}

		return failure(in.Filename, size, errKindInternal, err.Error())
	}

	// Validated. Compute the destination and write the bytes
	stem, ext := storage.SplitFilename(in.Filename)
	name := storage.BuildStorageName(in.Filename)

	if _, err := p.Paths.OwnerDir(owner.ID); err != nil {
		zap.L().Error("Failed to create owner directory", zap.Uint("ownerID", owner.ID), zap.Error(err))
		return failure(in.Filename, size, errKindStorage, "failed to prepare storage")
	}

	dest, err := p.Paths.FilePath(owner.ID, name, ext)
	if err != nil {
		zap.L().Error("Refusing storage path", zap.String("filename", in.Filename), zap.Error(err))
		return failure(in.Filename, size, errKindStorage, "invalid storage path")
	}

	if err := writeFile(temp, dest); err != nil {
		zap.L().Error("Failed to write upload to storage", zap.String("dest", dest), zap.Error(err))
		return failure(in.Filename, size, errKindStorage, "failed to store uploaded file")
	}

	// From here on any failure must remove the bytes again so nothing
	// orphaned stays behind
	if err := ctx.Err(); err != nil {
		removeStored(dest)
		return failure(in.Filename, size, errKindCancelled, "request was cancelled")
	}

	upload := &model.Upload{
		UserID:       owner.ID,
		Name:         name,
		CleanName:    storage.CleanFilename(stem),
		OriginalName: strings.TrimSpace(in.Filename),
		Ext:          ext,
		Size:         size,
		Type:         mime,
	}

	// Image metadata is best effort. A corrupt or unsupported image
	// still uploads fine, just without dimensions
	if strings.HasPrefix(mime, "image/") {
		img, err := InspectImage(dest)
		if err != nil {
			zap.L().Warn("Skipping image inspection",
				zap.String("filename", in.Filename),
				zap.String("type", mime),
				zap.Error(err))
		} else {
			upload.Image = img
		}
	}

	if err := p.Store.Create(ctx, upload); err != nil {
		removeStored(dest)

		zap.L().Error("Failed to persist upload record", zap.String("filename", in.Filename), zap.Error(err))
		return failure(in.Filename, size, errKindPersistence, "failed to record uploaded file")
	}

	return Outcome{
		Success:  true,
		UploadID: upload.ID,
		Filename: in.Filename,
		Size:     size,
	}
}

// removeStored deletes partially ingested bytes. Its own failure is
// logged but never reported instead of the error that caused the
// cleanup in the first place
func removeStored(dest string) {
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		zap.L().Error("Failed to clean up stored file", zap.String("dest", dest), zap.Error(err))
	}
}

func writeFile(src *os.File, dest string) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind temp file, %w", err)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create destination file, %w", err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to copy upload, %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to close destination file, %w", err)
	}

	return nil
}

func normalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i != -1 {
		mime = mime[:i]
	}

	return strings.TrimSpace(strings.ToLower(mime))
}
