package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	frontmatterRe = regexp.MustCompile(`(?s)\A---\n.*?\n---\n?`)
	codeBlockRe   = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`([^`]*)`")
	headerRe      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	linkRe        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	imageRe       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	boldItalicRe  = regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`)
	mdxImportRe   = regexp.MustCompile(`(?m)^(import|export)\s+.*$`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown strips markdown and MDX syntax down to plain prose suitable
// for embedding. Code blocks are dropped entirely; their prose context is
// what readers ask about.
func CleanMarkdown(content string) string {
	text := frontmatterRe.ReplaceAllString(content, "")
	text = mdxImportRe.ReplaceAllString(text, "")
	text = codeBlockRe.ReplaceAllString(text, "")
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = headerRe.ReplaceAllString(text, "")
	text = boldItalicRe.ReplaceAllString(text, "$1")
	text = stripTags(text)
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// stripTags removes HTML and JSX tags, keeping their text content.
func stripTags(content string) string {
	if !strings.ContainsRune(content, '<') {
		return content
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// Frontmatter extracts YAML frontmatter fields from a markdown file as a
// flat key-value map. Only simple "key: value" lines are recognized.
func Frontmatter(content string) map[string]string {
	match := frontmatterRe.FindString(content)
	if match == "" {
		return nil
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(match, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "---" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if value != "" {
			fields[strings.TrimSpace(key)] = value
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
