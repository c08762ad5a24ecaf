package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Characters rejected by Windows or POSIX filesystems. Cyrillic and other
// non-ASCII letters are kept as they are.
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\x7F]`)

// MaxFilenameBytes is the longest file name most filesystems accept.
const MaxFilenameBytes = 255

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename strips characters that are illegal in file names and
// trims the trailing dots and spaces Windows refuses. It does not add an
// extension and may return an empty string.
func SanitizeFilename(name string) string {
	return SanitizeFilenameLimit(name, MaxFilenameBytes)
}

// SanitizeFilenameLimit is SanitizeFilename with the result capped at
// maxBytes, cut on a rune boundary. Callers that append an extension pass
// MaxFilenameBytes minus its length.
func SanitizeFilenameLimit(name string, maxBytes int) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "")
	sanitized = strings.TrimRight(sanitized, ". ")

	if maxBytes > 0 && len(sanitized) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimRight(sanitized[:cut], ". ")
	}

	if sanitized == "." || sanitized == ".." {
		return ""
	}
	if _, ok := reservedNames[strings.ToUpper(sanitized)]; ok {
		sanitized += "_"
	}
	return sanitized
}
