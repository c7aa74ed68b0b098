package templates

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Search filters items by a fuzzy match of query against name, department and
// appCode, best matches first. An empty query returns items unchanged.
func Search(items []Template, query string) []Template {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}

	searchStrings := make([]string, 0, len(items))
	for _, t := range items {
		searchStrings = append(searchStrings, strings.Join([]string{t.Name, t.Department, t.AppCode}, " "))
	}

	matches := fuzzy.Find(query, searchStrings)
	results := make([]Template, 0, len(matches))
	for _, m := range matches {
		results = append(results, items[m.Index])
	}
	return results
}
