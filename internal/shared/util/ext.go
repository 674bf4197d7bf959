package util

import (
	"path/filepath"
	"strings"
)

// extensionByMIME maps the MIME types we accept to a file extension.
// Unknown types fall through to the generic binary extension.
var extensionByMIME = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"text/markdown":   ".md",
	"application/json": ".json",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// ResolveExtension picks a file extension for a stored blob. The filename
// extension wins; when absent, the MIME type decides via a fixed lookup.
func ResolveExtension(fileName, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" && ext != "." {
		return ext
	}
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if ext, ok := extensionByMIME[mime]; ok {
		return ext
	}
	return ".bin"
}
