// Package storage derives the on-disk layout for uploaded files. All
// files live under {root}/owner_{id}/{storage_name}.{ext} and this
// layout is a contract external tooling depends on
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Longest a sanitized stem is allowed to get before it gets cut off,
// so generated names stay well below common filesystem limits
const maxStemLen = 100

// Extensions with more than one dot that should be kept whole instead
// of splitting on the last dot only
var multipartExts = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst", ".tar.zstd"}

var nonWordChars = regexp.MustCompile(`[^a-z0-9]+`)

var ErrOutsideRoot = errors.New("resolved path escapes the storage root")

// Paths resolves storage names and owner directories under a fixed root
type Paths struct {
	root string
}

// New verifies the storage root is an accessible directory and returns
// a Paths anchored to its absolute location
func New(root string) (*Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root, %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage root %q is inaccessible, %w", abs, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %q is not a directory", abs)
	}

	return &Paths{root: abs}, nil
}

// Root returns the absolute storage root
func (p *Paths) Root() string {
	return p.root
}

// BuildStorageName generates a collision-free on-disk base name of the
// form {clean_stem}_{YYYYMMDD-HHMMSS}_{8 hex chars}. The extension is
// not part of the result, it's stored separately on the record
func BuildStorageName(originalFilename string) string {
	stem, _ := SplitFilename(originalFilename)

	u := uuid.New()
	suffix := hex.EncodeToString(u[:4])

	return fmt.Sprintf("%s_%s_%s", CleanFilename(stem), time.Now().Format("20060102-150405"), suffix)
}

// SplitFilename splits a filename into a stem and a lowercase extension
// without the leading dot. Multipart extensions like .tar.gz are kept
// whole, otherwise only the last segment counts
func SplitFilename(filename string) (stem, ext string) {
	filename = strings.TrimSpace(filename)

	lower := strings.ToLower(filename)
	for _, m := range multipartExts {
		if strings.HasSuffix(lower, m) && len(filename) > len(m) {
			return filename[:len(filename)-len(m)], strings.TrimPrefix(m, ".")
		}
	}

	i := strings.LastIndexByte(filename, '.')
	if i == -1 {
		return filename, ""
	}

	return filename[:i], strings.ToLower(filename[i+1:])
}

// CleanFilename reduces a filename stem to lowercase [a-z0-9_]. Runs of
// anything else collapse into single underscores. Traversal sequences,
// separators and null bytes can't survive this since none of them are
// in the allowed set
func CleanFilename(stem string) string {
	stem = strings.ToLower(strings.TrimSpace(stem))
	stem = nonWordChars.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "_")

	if len(stem) > maxStemLen {
		stem = strings.Trim(stem[:maxStemLen], "_")
	}

	if stem == "" {
		return "file"
	}

	return stem
}

// SanitizeFilename strips any path components from a client supplied
// filename so it's safe to echo back in a Content-Disposition header
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filepath.Clean("/" + filename))

	if filename == "/" || filename == "." {
		return "file"
	}

	return strings.ReplaceAll(filename, `"`, "")
}

// OwnerDir returns the per-owner directory under the storage root,
// creating it if needed. Creation is idempotent
func (p *Paths) OwnerDir(ownerID uint) (string, error) {
	dir := filepath.Join(p.root, fmt.Sprintf("owner_%d", ownerID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create owner directory, %w", err)
	}

	return dir, nil
}

// FilePath resolves the absolute path for a stored file and verifies it
// is still a descendant of the storage root before anyone writes to it
func (p *Paths) FilePath(ownerID uint, storageName, ext string) (string, error) {
	// Storage names come out of BuildStorageName and can't contain any
	// of these, so anything that does is hostile input
	if strings.ContainsAny(storageName+ext, `/\`) ||
		strings.Contains(storageName, "..") ||
		strings.Contains(storageName, "\x00") {
		return "", ErrOutsideRoot
	}

	filename := storageName
	if ext != "" {
		filename += "." + ext
	}

	full := filepath.Join(p.root, fmt.Sprintf("owner_%d", ownerID), filename)

	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path, %w", err)
	}

	if abs != p.root && !strings.HasPrefix(abs, p.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	return abs, nil
}
