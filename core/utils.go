package core

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// MaxSlugLen is the maximum length of generated slugs.
const MaxSlugLen = 80

// Slugify normalizes `s` into a URL friendly slug:
// accents are stripped, letters lowered, and any run of non-alphanumerics becomes a single "-".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= MaxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// truncateSlug cuts `slug` to at most `n` bytes, without a trailing "-".
func truncateSlug(slug string, n int) string {
	if len(slug) > n {
		slug = slug[:n]
	}
	return strings.TrimRight(slug, "-")
}

// UniqueSlug returns `base`, or `base-N` with the lowest N >= 2 for which exists returns false.
// The result never exceeds MaxSlugLen: `base` is shortened to make room for the suffix.
func UniqueSlug(base string, exists func(slug string) (bool, error)) (string, error) {
	if base == "" {
		base = "untitled"
	}
	slug := truncateSlug(base, MaxSlugLen)
	for n := 2; ; n++ {
		taken, err := exists(slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		suffix := "-" + strconv.Itoa(n)
		slug = truncateSlug(base, MaxSlugLen-len(suffix)) + suffix
	}
}

// Getwd tries to find the project root (the closest parent holding a go.mod).
// go-test changes the working directory to the test package being run during tests.
// Falls back to the current working directory when no go.mod is found (eg. deployed binaries).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
