package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var weekDirRe = regexp.MustCompile(`(?i)weeks?[-_ ]?(\d+)(?:[-_ ](\d+))?`)

// FileMetadata describes where a source file sits in the textbook.
type FileMetadata struct {
	Title string
	Week  string
}

// MetadataFromPath derives a chapter title and week label from a file's
// location, e.g. docs/weeks-3-4/walking-gaits.md. Frontmatter fields, when
// present, take precedence over path-derived values.
func MetadataFromPath(path string, frontmatter map[string]string) FileMetadata {
	meta := FileMetadata{
		Title: titleFromStem(stem(path)),
		Week:  weekFromPath(path),
	}
	if t := frontmatter["title"]; t != "" {
		meta.Title = t
	}
	if w := frontmatter["week"]; w != "" {
		meta.Week = w
	}
	return meta
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func titleFromStem(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func weekFromPath(path string) string {
	m := weekDirRe.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	if m[2] != "" {
		return fmt.Sprintf("Weeks %s-%s", m[1], m[2])
	}
	return fmt.Sprintf("Week %s", m[1])
}
