package ingest

import "strings"

// SplitText chunks text into pieces of roughly size runes with overlap runes
// carried between consecutive chunks. Paragraph boundaries are preferred
// split points; a paragraph longer than size is split mid-text.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Prefer breaking at a paragraph, then a sentence, then a word.
		cut := end
		window := string(runes[start:end])
		if idx := strings.LastIndex(window, "\n\n"); idx > size/2 {
			cut = start + len([]rune(window[:idx]))
		} else if idx := strings.LastIndexAny(window, ".!?"); idx > size/2 {
			cut = start + len([]rune(window[:idx+1]))
		} else if idx := strings.LastIndexAny(window, " \n"); idx > size/2 {
			cut = start + len([]rune(window[:idx]))
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
