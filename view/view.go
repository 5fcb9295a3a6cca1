// Package view selects the articles to present from an aggregate state.
package view

import (
	"fmt"
	"strings"

	"github.com/scipunch/newsdesk/aggregator"
	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher/types"
)

// Kind is the type of a view
type Kind int

const (
	KindAll Kind = iota
	KindCategory
	KindSource
)

func (k Kind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindCategory:
		return "category"
	case KindSource:
		return "source"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mode selects one of the views over the aggregate state
type Mode struct {
	Kind  Kind
	Value string // Category or source name
}

// All selects the ranked, deduplicated list
func All() Mode {
	return Mode{Kind: KindAll}
}

// ByCategory selects ranked articles of one category, or of a merged category
func ByCategory(category string) Mode {
	return Mode{Kind: KindCategory, Value: category}
}

// BySource selects the per-source list of one source, which is not deduplicated
func BySource(name string) Mode {
	return Mode{Kind: KindSource, Value: name}
}

func (m Mode) String() string {
	if m.Kind == KindAll {
		return m.Kind.String()
	}
	return m.Kind.String() + ":" + m.Value
}

// Parse builds a mode from optional category and source selectors. Both set is an error.
func Parse(category, source string) (Mode, error) {
	category = strings.TrimSpace(category)
	source = strings.TrimSpace(source)
	switch {
	case category != "" && source != "":
		return Mode{}, fmt.Errorf("category and source views are exclusive")
	case category != "":
		return ByCategory(category), nil
	case source != "":
		return BySource(source), nil
	default:
		return All(), nil
	}
}

// Select returns the articles of state visible in mode.
// merged lists the categories that stand for several underlying ones.
// The state is never modified.
func Select(state *aggregator.State, mode Mode, merged []config.MergedCategory) []types.Article {
	if state == nil {
		return nil
	}

	switch mode.Kind {
	case KindCategory:
		members := categoryMembers(mode.Value, merged)
		out := make([]types.Article, 0, len(state.Articles))
		for _, a := range state.Articles {
			if members[a.Category] {
				out = append(out, a)
			}
		}
		return out
	case KindSource:
		articles := state.BySource[mode.Value]
		out := make([]types.Article, len(articles))
		copy(out, articles)
		return out
	default:
		return state.Articles
	}
}

// Categories lists the category filters available for state: source categories
// in source order, followed by the configured merged categories
func Categories(state *aggregator.State, merged []config.MergedCategory) []string {
	var out []string
	seen := make(map[string]bool)
	if state != nil {
		for _, st := range state.Statuses {
			if !seen[st.Category] {
				seen[st.Category] = true
				out = append(out, st.Category)
			}
		}
	}
	for _, m := range merged {
		if !seen[m.Name] {
			seen[m.Name] = true
			out = append(out, m.Name)
		}
	}
	return out
}

func categoryMembers(category string, merged []config.MergedCategory) map[string]bool {
	for _, m := range merged {
		if m.Name == category {
			members := make(map[string]bool, len(m.Categories))
			for _, c := range m.Categories {
				members[c] = true
			}
			return members
		}
	}
	return map[string]bool{category: true}
}
