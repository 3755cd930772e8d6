package registry

import (
	"context"
	"kwrelay/internal/ports"
	"strings"
)

// Keywords is the set of trigger words. Entries are unique by exact string; matching against
// message text ignores case.
type Keywords struct {
	*Registry
}

func OpenKeywords(ctx context.Context, store ports.RegistryStore, resource string) (*Keywords, error) {
	r, err := Open(ctx, store, resource, NormalizeKeyword)
	if err != nil {
		return nil, err
	}
	return &Keywords{Registry: r}, nil
}

// Matching returns the keywords contained in text, in list order. Nil means no match. A stale
// cache is refreshed first; when that fails the cached keywords are used.
func (k *Keywords) Matching(ctx context.Context, text string) []string {
	_ = k.Refresh(ctx)
	return MatchingKeywords(text, k.List())
}

func NormalizeKeyword(s string) string {
	return strings.TrimSpace(s)
}

// ContainsMatch reports whether any keyword, lower-cased, is a substring of the lower-cased
// text. An empty keyword set never matches.
func ContainsMatch(text string, keywords []string) bool {
	return len(MatchingKeywords(text, keywords)) > 0
}

func MatchingKeywords(text string, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return hits
}
