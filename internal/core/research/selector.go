package research

import (
	"sort"
	"strings"
)

// Financial-statement vocabulary routes to the fact tool.
var financialPatterns = []string{
	"revenue",
	"net income",
	"income statement",
	"earnings",
	"profit",
	"margin",
	"balance sheet",
	"cash flow",
	"total assets",
	"liabilities",
	"inventory",
	"financial statement",
	"financial fact",
	"xbrl",
}

// Risk and management vocabulary routes to the document-section tool.
var documentPatterns = []string{
	"risk",
	"management",
	"governance",
	"disclosure",
	"10-k",
	"md&a",
	"filing",
	"legal proceeding",
}

// Analysis vocabulary routes to the general reasoning tool.
var analysisPatterns = []string{
	"analy",
	"assess",
	"evaluate",
	"compare",
	"implication",
	"interpret",
	"reason",
}

// SelectToolHeuristic deterministically picks a tool for a step description.
// Priority order: financial > document > analysis > search.
// The result is always a member of available unless available is empty,
// in which case the general search tool is returned.
func SelectToolHeuristic(description string, available []string) string {
	text := strings.ToLower(description)

	var preferred string
	switch {
	case containsAny(text, financialPatterns):
		preferred = ToolFinancialFacts
	case containsAny(text, documentPatterns):
		preferred = ToolDocumentSection
	case containsAny(text, analysisPatterns):
		preferred = ToolReasoning
	default:
		preferred = ToolSearch
	}

	if len(available) == 0 {
		return ToolSearch
	}
	if contains(available, preferred) {
		return preferred
	}

	// Preferred tool is not offered: fall back to any search-class tool,
	// then to whatever the manifest lists first.
	if contains(available, ToolSearch) {
		return ToolSearch
	}
	for _, name := range available {
		if ClassOf(name) == ClassSearch {
			return name
		}
	}
	return available[0]
}

// MatchToolChoice validates a provider's tool choice against the available
// names. It tolerates quoting, trailing punctuation and surrounding prose
// as long as exactly one tool name is recognisable.
func MatchToolChoice(answer string, available []string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(answer))
	cleaned = strings.Trim(cleaned, "`\"'.*: \n\t")

	for _, name := range available {
		if cleaned == strings.ToLower(name) {
			return name, true
		}
	}

	// Longest names first so "market-data-api" wins over a shorter prefix.
	sorted := append([]string(nil), available...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	var found []string
	remaining := cleaned
	for _, name := range sorted {
		lower := strings.ToLower(name)
		if strings.Contains(remaining, lower) {
			found = append(found, name)
			remaining = strings.ReplaceAll(remaining, lower, "")
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
