// Package quota implements the per-tier upload limit checks. Checks are
// pure so they can run both before bytes are read (declared size) and
// after (measured size)
package quota

import (
	"fmt"
	"strings"
)

// Kind classifies why a check failed
type Kind string

const (
	FileTooLarge   Kind = "file_too_large"
	QuotaExceeded  Kind = "quota_exceeded"
	TypeNotAllowed Kind = "type_not_allowed"
	EmptyFile      Kind = "empty_file"
)

// Error is a failed quota check. Kind is stable and safe to expose to
// clients, Message is the human readable part
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Limits describes one tier. -1 means unlimited for both MaxFileSize
// and MaxFileCount. AllowedTypes supports "*" and prefix wildcards
// like "image/*"
type Limits struct {
	MaxFileSize  int64
	MaxFileCount int64
	AllowedTypes []string
}

// Tiers holds the limits for both account tiers
type Tiers struct {
	Registered   Limits
	Unregistered Limits
}

// For returns the limits applicable to an owner based on whether
// their account is registered
func (t Tiers) For(registered bool) Limits {
	if registered {
		return t.Registered
	}

	return t.Unregistered
}

// Check validates a candidate file against the tier limits. The first
// failing check determines the reported error kind. count is the number
// of files the owner already has
func Check(l Limits, size int64, mimeType string, count int64) error {
	if size == 0 {
		return &Error{
			Kind:    EmptyFile,
			Message: "empty files can't be uploaded",
		}
	}

	if l.MaxFileSize != -1 && size > l.MaxFileSize {
		return &Error{
			Kind:    FileTooLarge,
			Message: fmt.Sprintf("file exceeds the maximum allowed size of %d bytes", l.MaxFileSize),
		}
	}

	if l.MaxFileCount != -1 && count >= l.MaxFileCount {
		return &Error{
			Kind:    QuotaExceeded,
			Message: fmt.Sprintf("upload limit of %d files reached", l.MaxFileCount),
		}
	}

	if !typeAllowed(l.AllowedTypes, mimeType) {
		return &Error{
			Kind:    TypeNotAllowed,
			Message: fmt.Sprintf("file type %q is not allowed", mimeType),
		}
	}

	return nil
}

func typeAllowed(allowed []string, mimeType string) bool {
	mimeType = strings.ToLower(mimeType)

	// Content types can carry parameters like "; charset=utf-8"
	if i := strings.IndexByte(mimeType, ';'); i != -1 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))

		switch {
		case a == "*":
			return true
		case strings.HasSuffix(a, "/*"):
			if strings.HasPrefix(mimeType, a[:len(a)-1]) {
				return true
			}
		case a == mimeType:
			return true
		}
	}

	return false
}
