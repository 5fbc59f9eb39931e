package retrieval

import "strings"

// Gate decides whether a message is worth an index query. It is a cost gate,
// not a relevance filter: a match only means the message might benefit from
// reference material.
type Gate struct {
	keywords []string
}

// NewGate normalizes the keyword list; blank entries are dropped.
func NewGate(keywords []string) *Gate {
	normalized := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, word := range keywords {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		normalized = append(normalized, word)
	}
	return &Gate{keywords: normalized}
}

// ShouldRetrieve reports whether text contains any keyword, ignoring case.
func (g *Gate) ShouldRetrieve(text string) bool {
	if g == nil {
		return false
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, word := range g.keywords {
		if strings.Contains(normalized, word) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the normalized keyword list.
func (g *Gate) Keywords() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.keywords...)
}
