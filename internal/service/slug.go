package service

import (
	"regexp"
	"strings"
)

var (
	slugInvalid    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-+`)
)

// Slugify derives a URL slug from a title: lowercase, drop everything
// outside [a-z0-9 -], turn whitespace runs into one hyphen, collapse
// repeated hyphens and trim hyphens and spaces from both ends.
//
//	"Half-Life 2!!"          -> "half-life-2"
//	"  Multiple   Spaces  "  -> "multiple-spaces"
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "- ")
}
