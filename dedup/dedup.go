// Package dedup suppresses articles whose titles are lexically near-identical.
package dedup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scipunch/newsdesk/fetcher/types"
)

// DefaultThreshold is the similarity at or above which two titles are duplicates
const DefaultThreshold = 0.72

// minTokenLen is the shortest token that takes part in a comparison
const minTokenLen = 3

// NormalizeTitle lowercases the title, drops everything except letters, digits
// and whitespace, then collapses whitespace runs into single spaces
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the set of normalized words of title that are longer than two characters
func Tokens(title string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeTitle(title)) {
		if utf8.RuneCountInString(tok) < minTokenLen {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard index of the token sets of a and b.
// Two empty sets are identical, one empty set matches nothing.
func Similarity(a, b string) float64 {
	return jaccard(Tokens(a), Tokens(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// Dedupe keeps, in order, every article whose title is less similar than threshold
// to all articles kept before it. Earlier articles win.
func Dedupe(articles []types.Article, threshold float64) []types.Article {
	kept := make([]types.Article, 0, len(articles))
	keptTokens := make([]map[string]struct{}, 0, len(articles))

	for _, a := range articles {
		tokens := Tokens(a.Title)
		duplicate := false
		for _, other := range keptTokens {
			if jaccard(tokens, other) >= threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, a)
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}
