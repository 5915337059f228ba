// Package models holds the vendor-neutral search result shape shared by all
// web search adapters.
package models

// Result is a single normalized web search hit.
type Result struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Summary        string  `json:"summary"`
	Source         string  `json:"source"`
	PublishedDate  string  `json:"published_date,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}
