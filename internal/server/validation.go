// validation.go - Input validation and sanitization helpers
package server

import (
	"path/filepath"
	"regexp"
	"strings"
)

// usernameRegex matches the identities the credential store admits.
var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)

// ValidUsername reports whether s is a plausible username. Used to reject
// junk receiver values before hitting the user directory.
func ValidUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// SanitizeFilename removes potentially dangerous characters from filenames.
// The name is echoed back in the Content-Disposition header, so path
// separators, quotes, and control bytes must not survive.
func SanitizeFilename(filename string) string {
	// Remove path separators
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	// Remove null bytes and header-breaking characters
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.ReplaceAll(filename, `"`, "_")
	filename = strings.ReplaceAll(filename, "\r", "")
	filename = strings.ReplaceAll(filename, "\n", "")

	// Trim spaces and dots from start/end
	filename = strings.Trim(filename, " .")

	// Limit length
	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		nameWithoutExt := filename[:len(filename)-len(ext)]
		filename = nameWithoutExt[:255-len(ext)] + ext
	}

	if filename == "" {
		filename = "unnamed"
	}

	return filename
}
