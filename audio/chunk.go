package audio

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most limit characters. It prefers
// paragraph breaks, then sentence ends, then spaces, and only cuts inside a
// word when a single word exceeds the limit. No text is dropped apart from
// the whitespace at the cut points.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			chunks = append(chunks, text)
			break
		}
		window := prefix(text, limit)
		cut := lastBreak(window)
		piece := strings.TrimSpace(text[:cut])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		text = strings.TrimSpace(text[cut:])
	}
	return chunks
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// lastBreak finds the byte offset to cut window at.
func lastBreak(window string) int {
	if i := strings.LastIndex(window, "\n\n"); i > len(window)/2 {
		return i + 2
	}
	best := -1
	for _, end := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(window, end); i > best {
			best = i
		}
	}
	if best > len(window)/3 {
		return best + 2
	}
	if i := strings.LastIndexAny(window, " \n\t"); i > 0 {
		return i + 1
	}
	return len(window)
}
