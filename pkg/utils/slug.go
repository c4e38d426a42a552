package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	MinSlugLength = 3
	MaxSlugLength = 100
)

var (
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugInvalid    = regexp.MustCompile(`[^\w-]+`)
	slugHyphens    = regexp.MustCompile(`-{2,}`)
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// GenerateSlug turns arbitrary text into a URL-safe identifier. Accented
// letters are folded to their base form before non-word characters are
// stripped. The result may be empty or shorter than MinSlugLength; callers
// decide whether that is acceptable.
func GenerateSlug(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, text); err == nil {
		text = folded
	}

	text = strings.ToLower(text)
	text = strings.TrimSpace(text)
	text = slugWhitespace.ReplaceAllString(text, "-")
	text = slugInvalid.ReplaceAllString(text, "")
	text = slugHyphens.ReplaceAllString(text, "-")

	return strings.Trim(text, "-")
}

func ValidateSlug(slug string) bool {
	if len(slug) < MinSlugLength || len(slug) > MaxSlugLength {
		return false
	}
	return slugPattern.MatchString(slug)
}

// EnsureUniqueSlug returns base when it is not taken, otherwise the first of
// base-1, base-2, ... that is free. existing is never modified.
func EnsureUniqueSlug(base string, existing []string) string {
	if len(existing) == 0 {
		return base
	}

	taken := make(map[string]struct{}, len(existing))
	for _, slug := range existing {
		taken[slug] = struct{}{}
	}

	if _, ok := taken[base]; !ok {
		return base
	}

	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
