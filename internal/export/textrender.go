package export

import (
	"html"
	"strings"
)

// TextToHTML converts a plain-text field to HTML. Blank lines separate
// paragraphs, single newlines become <br>, and blocks where every line starts
// with "- " or "* " render as bullet lists. All text is escaped.
func TextToHTML(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(normalized) == "" {
		return ""
	}

	var result strings.Builder
	for _, block := range splitBlocks(normalized) {
		lines := strings.Split(block, "\n")
		if isBulletBlock(lines) {
			result.WriteString("<ul>\n")
			for _, line := range lines {
				item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
				result.WriteString("<li>" + html.EscapeString(item) + "</li>\n")
			}
			result.WriteString("</ul>\n")
			continue
		}

		escaped := make([]string, 0, len(lines))
		for _, line := range lines {
			escaped = append(escaped, html.EscapeString(line))
		}
		result.WriteString("<p>" + strings.Join(escaped, "<br>\n") + "</p>\n")
	}
	return result.String()
}

// splitBlocks splits text into blocks separated by one or more blank lines.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func isBulletBlock(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
			return false
		}
	}
	return len(lines) > 0
}
