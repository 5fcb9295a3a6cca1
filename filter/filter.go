package filter

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher/types"
)

// Markup that starts a new paragraph in feed summaries
var paragraphBreak = regexp.MustCompile(`(?i)<\s*(p|br|div|li)\b[^>]*>`)

// FilterPipeline applies a series of named filters to articles
type FilterPipeline struct {
	filters map[string]*CompiledFilter
}

// CompiledFilter contains compiled regex patterns for efficient matching
type CompiledFilter struct {
	config          config.Filter
	excludePatterns []*regexp.Regexp
	patternSources  []string
}

// NewFilterPipeline creates a new filter pipeline from config.
// Invalid patterns are logged and skipped.
func NewFilterPipeline(filtersConfig map[string]config.Filter) (*FilterPipeline, error) {
	compiled := make(map[string]*CompiledFilter, len(filtersConfig))

	for name, filterCfg := range filtersConfig {
		cf := &CompiledFilter{
			config:          filterCfg,
			excludePatterns: make([]*regexp.Regexp, 0, len(filterCfg.ExcludePatterns)),
		}

		for _, pattern := range filterCfg.ExcludePatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				slog.Warn("invalid regex pattern in filter", "filter", name, "pattern", pattern, "error", err)
				continue
			}
			cf.excludePatterns = append(cf.excludePatterns, re)
			cf.patternSources = append(cf.patternSources, pattern)
		}

		compiled[name] = cf
	}

	return &FilterPipeline{filters: compiled}, nil
}

// Apply returns the articles passing every filter in filterNames, preserving order.
// The input is returned as is when there is nothing to apply.
func (fp *FilterPipeline) Apply(articles []types.Article, filterNames []string) []types.Article {
	if fp == nil || len(filterNames) == 0 || len(articles) == 0 {
		return articles
	}

	kept := make([]types.Article, 0, len(articles))
	for _, a := range articles {
		include, reason := fp.ShouldInclude(a, filterNames)
		if !include {
			slog.Debug("article filtered out", "source", a.SourceName, "title", a.Title, "reason", reason)
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// ShouldInclude returns true if the article passes all filters in the pipeline.
// filterNames is a list of filter names to apply in order; on rejection the
// reason names the filter and the failed rule.
func (fp *FilterPipeline) ShouldInclude(article types.Article, filterNames []string) (bool, string) {
	if len(filterNames) == 0 {
		return true, "" // No filters = include everything
	}

	for _, filterName := range filterNames {
		filter, exists := fp.filters[filterName]
		if !exists {
			slog.Warn("filter not found, skipping", "filter_name", filterName)
			continue
		}

		if shouldInclude, reason := applyFilter(article, filter, filterName); !shouldInclude {
			return false, reason
		}
	}

	return true, ""
}

func applyFilter(article types.Article, filter *CompiledFilter, filterName string) (bool, string) {
	text := article.Title + " " + article.Summary

	if filter.config.MinLength > 0 && utf8.RuneCountInString(text) < filter.config.MinLength {
		return false, filterName + ":min_length"
	}

	if filter.config.MinWords > 0 && countWords(text) < filter.config.MinWords {
		return false, filterName + ":min_words"
	}

	for i, pattern := range filter.excludePatterns {
		if pattern.MatchString(text) {
			return false, filterName + ":exclude_pattern[" + filter.patternSources[i] + "]"
		}
	}

	if filter.config.RequireParagraphs && !hasMultipleParagraphs(article.Summary) {
		return false, filterName + ":require_paragraphs"
	}

	return true, ""
}

// countWords counts runs of letters and digits
func countWords(text string) int {
	words := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return words
}

// hasMultipleParagraphs reports whether the summary has at least two non-empty
// lines, counting block-level markup as a line break
func hasMultipleParagraphs(summary string) bool {
	text := paragraphBreak.ReplaceAllString(summary, "\n")
	nonEmptyLines := 0

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(stripTags(line)) != "" {
			nonEmptyLines++
		}
	}

	return nonEmptyLines >= 2
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
