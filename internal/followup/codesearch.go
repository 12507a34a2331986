package followup

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	tooManyMatches = 50
	longQueryLen   = 60
)

// CodeSearchResult is the output of the code-search tool.
type CodeSearchResult struct {
	Query   string   `json:"query"`
	Matches int      `json:"matches"`
	Files   []string `json:"files,omitempty"`
}

type keywordSuggestion struct {
	keyword    string
	suggestion string
}

// Checked in order; the first keyword found wins.
var codeSearchKeywords = []keywordSuggestion{
	{"error", "Trace the error handling paths in the matches and look for swallowed errors"},
	{"test", "Review test coverage for the matched code and list untested branches"},
	{"performance", "Profile the matched code paths and identify hot spots"},
	{"security", "Audit the matched code for input validation and secret handling"},
	{"async", "Check the concurrent code in the matches for races and missing cancellation"},
	{"database", "Review the matched queries for N+1 patterns and missing indexes"},
	{"api", "Document the API endpoints found and check their error responses"},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// CodeSearch suggests a follow-up for a code search.
type CodeSearch struct{}

// FollowUp implements autopilot.FollowUpGenerator.
func (CodeSearch) FollowUp(r CodeSearchResult) string {
	query := strings.TrimSpace(r.Query)
	lower := strings.ToLower(query)

	for _, k := range codeSearchKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.suggestion
		}
	}

	switch {
	case query == "":
		return ""
	case r.Matches == 0:
		return fmt.Sprintf("Broaden the search: nothing matched %q", query)
	case r.Matches > tooManyMatches:
		return fmt.Sprintf("Narrow the search: %d matches across %d files", r.Matches, len(r.Files))
	case len(query) > longQueryLen:
		return "Split the long query into smaller searches and compare the results"
	case identifierPattern.MatchString(query):
		return fmt.Sprintf("Find the callers of %s and map how it is used", query)
	case len(r.Files) > 0:
		return fmt.Sprintf("Summarize how the matched code in %s works", filepath.Base(r.Files[0]))
	default:
		return fmt.Sprintf("Summarize the %d matches for %q", r.Matches, query)
	}
}
