// Package slug encodes a display name and numeric id into one URL path
// segment ("ahmed-khan-42") and decodes it back. Names may be Arabic; any
// rune that is not a letter, digit or space is dropped before slugging.
package slug

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Make builds the path segment for a name and id.
func Make(name string, id int64) string {
	cleaned := sanitize(name)
	if cleaned == "" {
		return strconv.FormatInt(id, 10)
	}
	return cleaned + "-" + strconv.FormatInt(id, 10)
}

// Parse splits a path segment back into name and id. The id is the trailing
// dash-separated field; everything before it is the name with dashes restored
// to spaces.
func Parse(segment string) (string, int64, error) {
	segment = strings.Trim(segment, "-")
	if segment == "" {
		return "", 0, fmt.Errorf("slug: empty segment")
	}
	idx := strings.LastIndex(segment, "-")
	if idx < 0 {
		id, err := strconv.ParseInt(segment, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("slug: %q has no id field", segment)
		}
		return "", id, nil
	}
	id, err := strconv.ParseInt(segment[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("slug: %q has no id field", segment)
	}
	name := strings.ReplaceAll(segment[:idx], "-", " ")
	return name, id, nil
}

func sanitize(name string) string {
	var b strings.Builder
	lastDash := true // swallow leading separators
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
