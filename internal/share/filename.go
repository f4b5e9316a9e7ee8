package share

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFileNameBytes = 255

// SanitizeFilename removes path separators and NUL bytes, trims leading and
// trailing spaces and dots, and caps the length while keeping the extension.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Trim(filename, " .")

	if len(filename) > maxFileNameBytes {
		ext := filepath.Ext(filename)
		if len(ext) > 16 {
			ext = ""
		}
		base := filename[:maxFileNameBytes-len(ext)]
		for !utf8.ValidString(base) {
			base = base[:len(base)-1]
		}
		filename = base + ext
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename
}
