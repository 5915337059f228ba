// Package mock is a deterministic text-generation capability for local
// development and tests. It recognises the planning and review prompt
// shapes by their JSON field names and answers with canned, parseable
// output; everything else gets a small markdown report.
package mock

import (
	"context"
	"fmt"
	"strings"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Generate(_ context.Context, prompt string, _ map[string]interface{}) (string, error) {
	switch {
	case strings.Contains(prompt, `"investigation_points"`):
		theme := extractTheme(prompt)
		return fmt.Sprintf(`{
  "theme": %q,
  "investigation_points": ["%s fundamentals", "%s applications", "%s current developments"],
  "search_queries": ["%s", "%s overview", "%s latest"],
  "plan_text": "Structured investigation of %s across fundamentals, applications, and recent developments."
}`, theme, theme, theme, theme, theme, theme, theme, theme), nil
	case strings.Contains(prompt, `"approved"`):
		return `{"approved": true, "feedback": "", "target": "writer"}`, nil
	default:
		theme := extractTheme(prompt)
		return fmt.Sprintf(`# %s

## Executive Summary

This report summarises the collected evidence on %s.

## Key Findings

1. The topic is well covered by the collected sources.
2. Further detail is available in the references.

## Analysis

Each investigation point is addressed by at least one source.
`, theme, theme), nil
	}
}

func extractTheme(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "Theme: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Theme: "))
		}
	}
	return "Research topic"
}
