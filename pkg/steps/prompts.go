package steps

import (
	"fmt"
	"strings"

	"github.com/rimraf-adi/socrates/internal/textutil"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Prompt size limits, in runes.
const (
	taskLimit     = 2000
	contextLimit  = 4000
	outputLimit   = 10000
	feedbackLimit = 8000
	reviewLimit   = 20000
	findingsLimit = 28000
)

const systemPrompt = "You are a careful assistant. Answer in Markdown."

func generatePrompt(s *domain.State, searchContext string) string {
	var b strings.Builder
	if s.Iteration == 0 {
		b.WriteString("Write a complete response to the task below.\n\n")
	} else {
		b.WriteString("Revise your previous response so that it addresses every point of the review.\n\n")
	}
	fmt.Fprintf(&b, "Task:\n%s\n", textutil.Truncate(s.Task, taskLimit))
	if s.Iteration > 0 {
		fmt.Fprintf(&b, "\nPrevious response:\n%s\n", textutil.Truncate(s.CurrentOutput, outputLimit))
		fmt.Fprintf(&b, "\nReview:\n%s\n", textutil.Truncate(s.Feedback, feedbackLimit))
	}
	if searchContext != "" {
		fmt.Fprintf(&b, "\nWeb context:\n%s\n", textutil.Truncate(searchContext, contextLimit))
	}
	b.WriteString("\nReturn the full response, not a diff.")
	return b.String()
}

func critiquePrompt(s *domain.State) string {
	return fmt.Sprintf(`Review the response below (draft %d) and push it toward more depth and coverage.

Task:
%s

Response:
%s

Reply with these sections:
## Errors
## Missing Topics
## Required Changes
## Verdict`, s.Iteration+1, textutil.Truncate(s.Task, taskLimit), textutil.Truncate(s.CurrentOutput, reviewLimit))
}

func planPrompt(query string) string {
	return fmt.Sprintf(`Break the research query below into searchable sub-questions.

Query: %q

Reply with only a JSON object:
{"query_type": "factual|comparative|exploratory|technical|how-to|opinion",
 "research_depth": "quick|standard|deep",
 "sub_questions": ["...", "..."]}

Use 2-3 sub-questions for factual queries, 4-5 for comparisons and 5-7 for open topics.`, query)
}

func analyzePrompt(item, results string) string {
	return fmt.Sprintf(`Answer the research question using the search results below. Cite results as [n].

Question: %s

Search results:
%s

Reply with:
### Key Findings
### Details
### Gaps`, item, results)
}

func coveragePrompt(s *domain.State, findings string) string {
	return fmt.Sprintf(`Judge whether the findings below fully answer the query.

Query: %s

Questions already researched:
%s

Findings:
%s

Reply with only a JSON object:
{"is_sufficient": true|false, "coverage_score": 0.0-1.0,
 "knowledge_gap": "...", "follow_up_queries": ["..."]}`,
		s.Task, "- "+strings.Join(s.PendingItems, "\n- "), textutil.Truncate(findings, findingsLimit))
}

var synthesisFormats = map[string]string{
	domain.QueryComparative: "Structure: Overview, one section per option with strengths and weaknesses, a comparison table, Recommendation.",
	domain.QueryFactual:     "Structure: Direct Answer first, then Details and Context.",
	domain.QueryHowTo:       "Structure: Prerequisites, numbered Steps, Common Pitfalls.",
	domain.QueryTechnical:   "Structure: Summary, Architecture or Mechanism, Trade-offs, Examples.",
	domain.QueryOpinion:     "Structure: The Question, Perspectives (each with its best evidence), Assessment.",
	domain.QueryExploratory: "Structure: Executive Summary, one section per theme, Open Questions.",
}

func synthesisPrompt(s *domain.State, findings, sources string) string {
	format, ok := synthesisFormats[s.QueryType]
	if !ok {
		format = "Structure: Summary, Findings, Conclusion."
	}
	return fmt.Sprintf(`Write the final report for the query below from the research findings.

Query: %s

Findings:
%s

Sources:
%s

%s
Cite sources as [n] using the numbers above.`, s.Task, textutil.Truncate(findings, findingsLimit), sources, format)
}

// composeFindings renders one section per analyzed item.
func composeFindings(history []domain.CycleRecord) string {
	var b strings.Builder
	for _, h := range history {
		subject := h.Subject
		if subject == "" {
			subject = fmt.Sprintf("Cycle %d", h.Index)
		}
		fmt.Fprintf(&b, "## Research Area %d: %s\n\n%s\n\n", h.Index, subject, strings.TrimSpace(h.Artifact))
	}
	return strings.TrimSpace(b.String())
}

func formatSources(sources []domain.SearchResult) string {
	if len(sources) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s\n    URL: %s\n", i+1, src.Title, src.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
