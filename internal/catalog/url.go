package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so the discovery set never holds two
// entries resolving to the same absolute path. It lowercases the scheme and
// host, strips default ports and fragments, and canonicalizes the query.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// URLSet is a set of normalized absolute URLs, insertion-ordered. It is not
// safe for concurrent use; the walker owns it until hand-off.
type URLSet struct {
	seen  map[string]struct{}
	order []string
}

// NewURLSet creates an empty set.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add normalizes raw and inserts it, reporting whether it was new.
// Unparseable URLs are ignored and reported as not new.
func (s *URLSet) Add(raw string) bool {
	normalized, err := NormalizeURL(raw)
	if err != nil || normalized == "" {
		return false
	}
	if _, ok := s.seen[normalized]; ok {
		return false
	}
	s.seen[normalized] = struct{}{}
	s.order = append(s.order, normalized)
	return true
}

// Contains reports whether raw (after normalization) is already present.
func (s *URLSet) Contains(raw string) bool {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return false
	}
	_, ok := s.seen[normalized]
	return ok
}

// Len returns the number of URLs in the set.
func (s *URLSet) Len() int {
	return len(s.order)
}

// URLs returns the set contents in insertion order. The returned slice is a
// copy; mutating it does not affect the set.
func (s *URLSet) URLs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
