package http

import (
	"path/filepath"
	"strings"
)

// DefaultContentType is used for unknown or missing extensions
const DefaultContentType = "application/octet-stream"

var mimeTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "text/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"txt":  "text/plain",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"pdf":  "application/pdf",
	"wasm": "application/wasm",
}

// MimeType returns the content type for a file based on its extension
func MimeType(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	return DefaultContentType
}
