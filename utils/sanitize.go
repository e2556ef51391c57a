package utils

import (
	"html"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// StripTags removes all markup from user supplied text. The result is plain
// text, so entities bluemonday escapes (& ' " and friends) are decoded again.
func StripTags(input string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}

// SafeFilename reduces a client file name to a markup-free base name.
func SafeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = StripTags(base)
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		return "upload"
	}
	return base
}
