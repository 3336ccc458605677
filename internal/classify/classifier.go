// Package classify decides whether an assembled record belongs to the
// target product category.
package classify

import (
	"strings"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Config carries the keyword lists. The deny list is a precision
// correction layered on a recall-oriented allow list: free-text name
// matching alone produces false positives across adjacent categories that
// share vocabulary.
type Config struct {
	// CategorySegments are URL path fragments that identify target
	// category pages; a source URL containing one is accepted
	// unconditionally.
	CategorySegments []string
	AllowKeywords    []string
	DenyKeywords     []string
}

// Classifier is a pure predicate with no side effects.
type Classifier struct {
	segments []string
	allow    []string
	deny     []string
}

// New builds a Classifier, lowercasing all lists once.
func New(cfg Config) *Classifier {
	return &Classifier{
		segments: lowerAll(cfg.CategorySegments),
		allow:    lowerAll(cfg.AllowKeywords),
		deny:     lowerAll(cfg.DenyKeywords),
	}
}

// Accept applies the decision order: URL segment match short-circuits the
// keyword checks; otherwise the name must match the allow list and miss
// the deny list.
func (c *Classifier) Accept(p catalog.Product) bool {
	lowerURL := strings.ToLower(p.URL)
	for _, seg := range c.segments {
		if seg != "" && strings.Contains(lowerURL, seg) {
			return true
		}
	}

	lowerName := strings.ToLower(p.Name)
	if !containsAny(lowerName, c.allow) {
		return false
	}
	return !containsAny(lowerName, c.deny)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
