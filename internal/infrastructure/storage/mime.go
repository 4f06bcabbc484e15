package storage

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/xuecangming/file-manager/internal/common/types"
)

// Media formats the system mime tables often lack.
var extraTypes = map[string]string{
	".heic": "image/heic",
	".heif": "image/heif",
	".webp": "image/webp",
	".mkv":  "video/x-matroska",
	".3gp":  "video/3gpp",
	".mov":  "video/quicktime",
	".flac": "audio/flac",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".md":   "text/markdown",
	".epub": "application/epub+zip",
}

// MimeType guesses the mime type of name from its extension. Unknown
// extensions yield application/octet-stream.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}

// IsImage reports whether mimeType is an image type
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// DocumentTypes lists the non-text mime types counted as documents
var DocumentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/rtf",
	"application/epub+zip",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
}

// IsDocument reports whether mimeType is a text or office document
func IsDocument(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	for _, t := range DocumentTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// TrashDir is the per-volume directory deleted files are moved into
const TrashDir = ".Trash"

// InTrash reports whether path lies inside a trash directory
func InTrash(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == TrashDir {
			return true
		}
	}
	return false
}

// MatchesQuery reports whether a file of mimeType belongs to the listing
// of a mime-based query type.
func MatchesQuery(q types.QueryType, mimeType string) bool {
	switch q {
	case types.QueryAllImages:
		return IsImage(mimeType)
	case types.QueryAllVideos:
		return strings.HasPrefix(mimeType, "video/")
	case types.QueryAllAudio:
		return strings.HasPrefix(mimeType, "audio/")
	case types.QueryAllDocuments:
		return IsDocument(mimeType)
	}
	return false
}
