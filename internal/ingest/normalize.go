package ingest

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/Rishav0123/sentimatix/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gobwas/glob"
)

// Normalizer filters articles by source and turns HTML bodies into text.
type Normalizer struct {
	allow []glob.Glob
}

// NewNormalizer compiles the source allowlist. Patterns match the lowercased
// source name; an empty list admits every source.
func NewNormalizer(allowlist []string) (*Normalizer, error) {
	n := &Normalizer{}
	for _, p := range allowlist {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", p, err)
		}
		n.allow = append(n.allow, g)
	}
	return n, nil
}

// Allowed reports whether articles from source pass the allowlist.
func (n *Normalizer) Allowed(source string) bool {
	if len(n.allow) == 0 {
		return true
	}
	s := strings.ToLower(strings.TrimSpace(source))
	for _, g := range n.allow {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// IsHTML sniffs content for markup.
func IsHTML(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	return mimetype.Detect([]byte(strings.TrimSpace(content))).Is("text/html")
}

// Clean trims the article, upper-cases its symbol and converts an HTML body
// to markdown. A body that fails to convert is kept as-is.
func (n *Normalizer) Clean(a models.NewsArticle) models.NewsArticle {
	a.ID = strings.TrimSpace(a.ID)
	a.Title = strings.TrimSpace(a.Title)
	a.Source = strings.TrimSpace(a.Source)
	if a.Symbol != "" {
		a.Symbol, _ = models.NormalizeSymbol(a.Symbol)
	}
	if IsHTML(a.Content) {
		if md, err := htmltomarkdown.ConvertString(a.Content); err == nil {
			a.Content = strings.TrimSpace(md)
		}
	}
	return a
}
