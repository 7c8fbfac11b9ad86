package chat

import (
	"fmt"
	"strings"

	"psyconsult-chat/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the largest attachment accepted (10 MiB).
const MaxFileSize = 10 << 20

var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,

	"application/pdf": true,

	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,

	"text/plain": true,
	"text/csv":   true,

	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/x-rar-compressed": true,
	"application/vnd.rar":          true,
}

// AllowedMIMEType reports whether files of this type may be attached.
func AllowedMIMEType(mimeType string) bool {
	return allowedMIMETypes[normalizeMIME(mimeType)]
}

// File is an attachment picked by the user.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// DetectMIME returns the declared type, or the sniffed one when the declared
// type is missing or generic.
func DetectMIME(f File) string {
	declared := normalizeMIME(f.MIMEType)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return normalizeMIME(mimetype.Detect(f.Data).String())
}

// ValidateFile checks type and size and returns the MIME type to upload with.
func ValidateFile(f File) (string, error) {
	mimeType := DetectMIME(f)
	if !allowedMIMETypes[mimeType] {
		return "", &models.ValidationError{Field: "file", Detail: mimeType, Err: models.ErrFileTypeNotAllowed}
	}
	if f.Size() > MaxFileSize {
		detail := fmt.Sprintf("%.1f MB > %d MB", float64(f.Size())/(1<<20), MaxFileSize>>20)
		return "", &models.ValidationError{Field: "file", Detail: detail, Err: models.ErrFileTooLarge}
	}
	return mimeType, nil
}

// AbsoluteAttachmentURL turns a backend-relative attachment path into an URL
// under origin. Absolute URLs are returned unchanged.
func AbsoluteAttachmentURL(origin, path string) string {
	if path == "" {
		return ""
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(path, "//") {
		return path
	}
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(path, "/")
}

func normalizeMIME(s string) string {
	s, _, _ = strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(s))
}
