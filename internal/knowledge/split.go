package knowledge

import "strings"

// Split breaks markdown content into retrieval chunks. Paragraphs (blank-line
// separated) are accumulated up to maxChunkRunes; tiny trailing fragments are
// merged into the previous chunk so no chunk is shorter than minChunkRunes.
func Split(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	paragraphs := strings.Split(content, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		if len([]rune(text)) < minChunkRunes && len(chunks) > 0 {
			chunks[len(chunks)-1] += "\n\n" + text
			return
		}
		chunks = append(chunks, text)
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		// Oversized single paragraph: hard-split by runes.
		if len([]rune(p)) > maxChunkRunes {
			flush()
			for _, piece := range splitRunes(p, maxChunkRunes) {
				chunks = append(chunks, piece)
			}
			continue
		}

		if len([]rune(current.String()))+len([]rune(p)) > maxChunkRunes {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
	}
	return out
}
