package generation

import "regexp"

var citationPattern = regexp.MustCompile(`\[Chapter [^:\]]+:[^\]]+\]`)

// ExtractCitations pulls inline [Chapter X: Section Name] citations out of
// an answer, preserving order and duplicates. Always returns a non-nil slice.
func ExtractCitations(answer string) []string {
	citations := citationPattern.FindAllString(answer, -1)
	if citations == nil {
		return []string{}
	}
	return citations
}
