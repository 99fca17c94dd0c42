package embedding

import (
	"strings"

	"github.com/Rishav0123/sentimatix/internal/models"
)

// summaryChars is how much of the content stands in for a missing summary.
const summaryChars = 500

// PrepareText lays out an article for embedding as labelled sections
// separated by blank lines. Empty parts are omitted.
func PrepareText(title, content, summary string, entities []string) string {
	var parts []string
	if title != "" {
		parts = append(parts, "Title: "+title)
	}
	if summary != "" {
		parts = append(parts, "Summary: "+summary)
	} else if content != "" {
		parts = append(parts, "Summary: "+models.TruncateRunes(content, summaryChars))
	}
	if content != "" {
		parts = append(parts, "Content: "+content)
	}
	if len(entities) > 0 {
		parts = append(parts, "Entities: "+strings.Join(entities, ", "))
	}
	return strings.Join(parts, "\n\n")
}

// PrepareArticle is PrepareText over an article, tagging its symbol and any aliases as entities.
func PrepareArticle(a models.NewsArticle, aliases ...string) string {
	var entities []string
	if a.Symbol != "" {
		entities = append(entities, a.Symbol)
	}
	for _, alias := range aliases {
		if alias != "" {
			entities = append(entities, alias)
		}
	}
	return PrepareText(a.Title, a.Content, "", entities)
}

// Truncate keeps the first maxChars runes of text.
func Truncate(text string, maxChars int) string {
	return models.TruncateRunes(text, maxChars)
}
