package core

import (
	"fmt"
	"strings"
)

func planningPrompt(theme, humanInput string) string {
	var b strings.Builder
	b.WriteString("You are a research supervisor. Produce an investigation plan for the theme below.\n\n")
	fmt.Fprintf(&b, "Theme: %s\n", theme)
	if strings.TrimSpace(humanInput) != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the requester:\n%s\n", humanInput)
	}
	b.WriteString(`
Respond with JSON only, no prose, using exactly this shape:
{
  "theme": "restated theme",
  "investigation_points": ["3 to 6 concrete aspects to investigate"],
  "search_queries": ["one focused web search query per aspect"],
  "plan_text": "a short paragraph describing the plan"
}
`)
	return b.String()
}

func writerPrompt(s *ResearchState) string {
	var b strings.Builder
	b.WriteString("You are a research report writer. Write a structured markdown report.\n\n")
	fmt.Fprintf(&b, "Theme: %s\n\n", s.Theme)
	if s.TaskPlan != nil {
		b.WriteString("Investigation points:\n")
		for _, p := range s.TaskPlan.InvestigationPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	if len(s.Results) == 0 {
		b.WriteString("No search results were collected. Write a best-effort report from " +
			"general knowledge and state its data limitations prominently.\n")
	} else {
		b.WriteString("Collected evidence:\n")
		for i, r := range s.Results {
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Summary)
		}
	}
	if strings.TrimSpace(s.Feedback) != "" {
		fmt.Fprintf(&b, "\nReviewer feedback on the previous draft, address it:\n%s\n", s.Feedback)
	}
	if strings.TrimSpace(s.HumanInput) != "" {
		fmt.Fprintf(&b, "\nRequester instructions:\n%s\n", s.HumanInput)
	}
	b.WriteString("\nStart with a title line, then an executive summary, then one section per " +
		"investigation point, then a conclusion. Cite evidence as [n]. Output markdown only.\n")
	return b.String()
}

func reviewPrompt(s *ResearchState) string {
	var b strings.Builder
	b.WriteString("You are a research report reviewer. Judge whether the draft below adequately covers the plan.\n\n")
	fmt.Fprintf(&b, "Theme: %s\n", s.Theme)
	fmt.Fprintf(&b, "Iteration %d of %d.\n\n", s.Iteration, s.MaxIterations)
	if s.TaskPlan != nil {
		b.WriteString("Investigation points:\n")
		for _, p := range s.TaskPlan.InvestigationPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Draft:\n%s\n", s.Draft)
	b.WriteString(`
Respond with JSON only, no prose, using exactly this shape:
{
  "approved": true or false,
  "feedback": "what to improve, empty when approved",
  "target": "writer" for wording or structure issues, "supervisor" when the plan itself is inadequate
}
`)
	return b.String()
}
